package exchange

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuechangmingzou/trendguard/internal/utils"
	"github.com/yuechangmingzou/trendguard/pkg/types"
)

// Binance对“无需变更”的设置返回的错误码，视为成功
const (
	codeNoNeedChangeMarginType = -4046
	codeNoNeedChangeLeverage   = -4028
)

// GetBalance 获取USDT可用余额
func (be *BinanceExchange) GetBalance(ctx context.Context) (float64, error) {
	if be.dryRun {
		return dryRunBalance, nil
	}

	var balances []map[string]interface{}
	if err := be.client.DoJSON(ctx, "get_balance", http.MethodGet, "/fapi/v2/balance", nil, true, &balances); err != nil {
		return 0, err
	}

	for _, bal := range balances {
		if utils.ParseStringValue(bal["asset"]) != "USDT" {
			continue
		}
		free, err := utils.ParseFloatValue(bal["availableBalance"])
		if err != nil {
			return 0, &types.ExchangeError{Op: "get_balance", Kind: types.KindDecode, Err: err}
		}
		return free, nil
	}

	// 账户没有USDT资产
	return 0, nil
}

// SetMarginType 设置保证金模式（ISOLATED / CROSSED）
func (be *BinanceExchange) SetMarginType(ctx context.Context, symbol, marginType string) error {
	marginType = strings.ToUpper(marginType)
	if marginType == "CROSS" {
		marginType = "CROSSED"
	}

	if be.dryRun {
		be.logger.Infow("🧪 DRY RUN: 设置保证金模式", "symbol", symbol, "margin_type", marginType)
		return nil
	}

	params := map[string]string{
		"symbol":     utils.NormalizeSymbol(symbol),
		"marginType": marginType,
	}
	_, err := be.client.Do(ctx, "set_margin_type", http.MethodPost, "/fapi/v1/marginType", params, true)
	if isNoNeedChange(err, codeNoNeedChangeMarginType) {
		return nil
	}
	return err
}

// SetLeverage 设置杠杆倍数
func (be *BinanceExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if be.dryRun {
		be.logger.Infow("🧪 DRY RUN: 设置杠杆", "symbol", symbol, "leverage", leverage)
		return nil
	}

	params := map[string]string{
		"symbol":   utils.NormalizeSymbol(symbol),
		"leverage": strconv.Itoa(leverage),
	}
	_, err := be.client.Do(ctx, "set_leverage", http.MethodPost, "/fapi/v1/leverage", params, true)
	if isNoNeedChange(err, codeNoNeedChangeLeverage) {
		return nil
	}
	return err
}

func isNoNeedChange(err error, code int) bool {
	var exErr *types.ExchangeError
	return errors.As(err, &exErr) && exErr.Code == code
}
