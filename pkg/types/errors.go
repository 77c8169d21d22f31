package types

import (
	"errors"
	"fmt"
)

// ErrorKind 交易所调用错误分类
type ErrorKind int

const (
	KindUnknown     ErrorKind = iota
	KindNetwork               // 网络错误、超时、5xx
	KindRateLimited           // 429/418
	KindAuth                  // 401/403、签名或密钥错误
	KindRejected              // 交易所拒绝（参数、余额、精度等）
	KindDecode                // 响应解析失败
	KindConfig                // 本地配置缺失（如实盘缺少API密钥）
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindRejected:
		return "rejected"
	case KindDecode:
		return "decode"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// ExchangeError 交易所调用的统一错误类型
type ExchangeError struct {
	Op     string    // 操作名，如 place_order
	Kind   ErrorKind // 错误分类
	Status int       // HTTP状态码（如有）
	Code   int       // 交易所错误码（如有）
	Msg    string    // 交易所错误信息（如有）
	Err    error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s failed (%s): code=%d msg=%s", e.Op, e.Kind, e.Code, e.Msg)
	case e.Status != 0 && e.Err == nil:
		return fmt.Sprintf("%s failed (%s): HTTP %d %s", e.Op, e.Kind, e.Status, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s failed (%s)", e.Op, e.Kind)
	}
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// KindOf 提取错误分类，非ExchangeError返回KindUnknown
func KindOf(err error) ErrorKind {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Kind
	}
	return KindUnknown
}

// IsTransient 是否为可在下一个tick自然重试的暂时性错误
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited, KindUnknown:
		return err != nil
	default:
		return false
	}
}
