package utils

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ParseFloatValue 解析交易所返回的数值（字符串或数字）
func ParseFloatValue(v interface{}) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, fmt.Errorf("nil value")
	case float64:
		return val, nil
	case json.Number:
		return val.Float64()
	case string:
		if val == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.ParseFloat(val, 64)
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// ParseDecimalValue 按十进制精确解析数值，数量和精度字段必须走这里
func ParseDecimalValue(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("nil value")
	case string:
		return decimal.NewFromString(val)
	case json.Number:
		return decimal.NewFromString(val.String())
	case float64:
		return decimal.NewFromFloat(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", v)
	}
}

// ParseStringValue 将任意值转为字符串
func ParseStringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ParseBoolValue 解析布尔值
func ParseBoolValue(v interface{}) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(val)
	default:
		return false, fmt.Errorf("unsupported type %T", v)
	}
}
