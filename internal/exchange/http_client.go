package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// HTTPClient Binance REST客户端封装（限流、退避、签名、错误分类）
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	backoff     *BackoffManager
	baseURL     string
	apiKey      string
	secretKey   string
	recvWindow  int
	now         func() time.Time
}

// NewHTTPClient 创建HTTP客户端
func NewHTTPClient(baseURL, apiKey, secretKey string, timeout time.Duration, recvWindowMs int) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		client:      &http.Client{Timeout: timeout},
		rateLimiter: NewRateLimiter(10.0, 20), // 10 req/s, capacity 20
		backoff:     NewBackoffManager(),
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		secretKey:   secretKey,
		recvWindow:  recvWindowMs,
		now:         time.Now,
	}
}

// binanceAPIError Binance错误响应体
type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Do 发送请求并返回响应体。signed=true时附加timestamp/recvWindow/signature
func (c *HTTPClient) Do(ctx context.Context, op, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	// 等待退避窗口（如果有）
	if err := c.backoff.WaitBackoff(ctx); err != nil {
		return nil, &types.ExchangeError{Op: op, Kind: types.KindNetwork, Err: err}
	}

	// 应用限流
	if err := c.rateLimiter.Wait(ctx, 1); err != nil {
		return nil, &types.ExchangeError{Op: op, Kind: types.KindNetwork, Err: err}
	}

	if signed && (c.apiKey == "" || c.secretKey == "") {
		return nil, &types.ExchangeError{Op: op, Kind: types.KindConfig, Err: fmt.Errorf("API keys required")}
	}

	query := c.encodeParams(params, signed)
	reqURL := c.baseURL + endpoint
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, &types.ExchangeError{Op: op, Kind: types.KindConfig, Err: fmt.Errorf("create request failed: %w", err)}
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error会带上完整URL（含签名），脱敏后再包装
		return nil, &types.ExchangeError{Op: op, Kind: types.KindNetwork, Err: fmt.Errorf("request failed: %s", utils.SanitizeString(err.Error()))}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ExchangeError{Op: op, Kind: types.KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read body failed: %w", err)}
	}

	if resp.StatusCode == http.StatusOK {
		c.backoff.ResetBackoff()
		return body, nil
	}

	return nil, c.classify(op, endpoint, resp, body)
}

// DoJSON 发送请求并解析JSON
func (c *HTTPClient) DoJSON(ctx context.Context, op, method, endpoint string, params map[string]string, signed bool, out interface{}) error {
	body, err := c.Do(ctx, op, method, endpoint, params, signed)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &types.ExchangeError{Op: op, Kind: types.KindDecode, Err: fmt.Errorf("parse JSON failed: %w", err)}
	}
	return nil
}

// classify 将非200响应归类为统一错误
func (c *HTTPClient) classify(op, endpoint string, resp *http.Response, body []byte) error {
	exErr := &types.ExchangeError{Op: op, Status: resp.StatusCode}

	var apiErr binanceAPIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
		exErr.Code = apiErr.Code
		exErr.Msg = apiErr.Msg
	} else {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		exErr.Msg = msg
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		exErr.Kind = types.KindRateLimited
		waitSec := c.backoff.OnRateLimited(resp.StatusCode, ParseRetryAfter(resp.Header.Get("Retry-After")))
		utils.GetLogger("exchange").Warnw("API rate limited",
			"status", resp.StatusCode,
			"endpoint", endpoint,
			"wait_sec", waitSec,
		)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		exErr.Code == -2014 || exErr.Code == -2015 || exErr.Code == -1022:
		exErr.Kind = types.KindAuth
	case resp.StatusCode >= 500:
		exErr.Kind = types.KindNetwork
	default:
		exErr.Kind = types.KindRejected
	}

	return exErr
}

// encodeParams 按key排序编码参数，签名请求附加timestamp/recvWindow/signature
func (c *HTTPClient) encodeParams(params map[string]string, signed bool) string {
	all := make(map[string]string, len(params)+2)
	for k, v := range params {
		all[k] = v
	}
	if signed {
		all["timestamp"] = strconv.FormatInt(c.now().UnixMilli(), 10)
		if c.recvWindow > 0 {
			all["recvWindow"] = strconv.Itoa(c.recvWindow)
		}
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(all[k]))
	}
	query := strings.Join(parts, "&")

	if signed {
		query += "&signature=" + c.GenerateSignature(query)
	}
	return query
}

// GenerateSignature 生成HMAC-SHA256签名
func (c *HTTPClient) GenerateSignature(queryString string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}
