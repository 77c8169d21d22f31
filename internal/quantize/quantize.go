// Package quantize 把数量和价格向下取整到交易所规定的步长/跳动单位。
//
// 全程使用十进制定点数：步长是0.001这类十进制小数，二进制浮点的floor误差
// 会导致多报或少报数量。
package quantize

import (
	"github.com/shopspring/decimal"
)

// 预算除法保留的小数位，远大于任何交易所步长的精度
const quotientPrecision = 18

// Quantity 数量向下取整到stepSize的整数倍；raw<=0返回0。
// step<=0时无法取整，同样返回0，避免提交不合规数量
func Quantity(raw, step decimal.Decimal) decimal.Decimal {
	if raw.Sign() <= 0 || step.Sign() <= 0 {
		return decimal.Zero
	}
	return floorToGrid(raw, step)
}

// Price 价格向下取整到tickSize的整数倍；tick<=0时原样返回
func Price(raw, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return raw
	}
	if raw.Sign() <= 0 {
		return decimal.Zero
	}
	return floorToGrid(raw, tick)
}

// QuantityForBudget 按 spend/price 计算可买数量并向下取整。
// 商本身也截断而不是四舍五入，保证数量×价格不超过预算
func QuantityForBudget(spend, price, step decimal.Decimal) decimal.Decimal {
	if spend.Sign() <= 0 || price.Sign() <= 0 {
		return decimal.Zero
	}
	raw, _ := spend.QuoRem(price, quotientPrecision)
	return Quantity(raw, step)
}

// PriceFromFloat 浮点价格转为合规价格
func PriceFromFloat(raw float64, tick decimal.Decimal) decimal.Decimal {
	return Price(decimal.NewFromFloat(raw), tick)
}

func floorToGrid(raw, unit decimal.Decimal) decimal.Decimal {
	// QuoRem精确整除（商截断到整数），对正数即floor
	steps, _ := raw.QuoRem(unit, 0)
	return steps.Mul(unit)
}
