package pipeline

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxDiscount 折扣上限
	MaxDiscount = 0.9
	// MinQuantity 数量下限
	MinQuantity = 1
	// MinDaysToShip 小于该值的发货天数视为无效；-1 允许表示当天发货的日期误差
	MinDaysToShip = -1
)

// DerivationRule 派生规则
type DerivationRule interface {
	Name() string
	Requires() []string
	Provides() []string
	// Apply 修改行，返回 true 表示修正了已有的值
	Apply(*Order) bool
}

// DerivationStats 派生统计
type DerivationStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Skipped        []string         `json:"skipped,omitempty"`
	Corrected      map[string]int64 `json:"corrected"`
	LastRun        time.Time        `json:"last_run"`
}

// FeatureDeriver 特征派生器
type FeatureDeriver struct {
	rules  []DerivationRule
	logger *zap.Logger

	stats     DerivationStats
	statsLock sync.RWMutex
}

// NewFeatureDeriver 创建派生器，规则顺序即执行顺序
func NewFeatureDeriver(logger *zap.Logger) *FeatureDeriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &FeatureDeriver{
		logger: logger,
		stats:  DerivationStats{Corrected: make(map[string]int64)},
	}

	// 先派生，后修正
	d.AddRule(DaysToShipRule{})
	d.AddRule(CalendarRule{})
	d.AddRule(ProfitableRule{})
	d.AddRule(DiscountClampRule{Max: MaxDiscount})
	d.AddRule(QuantityClampRule{Min: MinQuantity})
	d.AddRule(DaysToShipSanityRule{Min: MinDaysToShip})

	return d
}

// AddRule 添加规则
func (d *FeatureDeriver) AddRule(rule DerivationRule) {
	d.rules = append(d.rules, rule)
}

// Rules 返回规则名
func (d *FeatureDeriver) Rules() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.Name()
	}
	return names
}

// Derive 返回添加派生列后的副本，不修改输入
func (d *FeatureDeriver) Derive(t *Table) *Table {
	out := t.Clone()

	stats := DerivationStats{Corrected: make(map[string]int64), LastRun: time.Now()}
	for _, rule := range d.rules {
		if !out.HasAll(rule.Requires()...) {
			stats.Skipped = append(stats.Skipped, rule.Name())
			continue
		}
		var corrected int64
		for i := range out.Rows {
			if rule.Apply(&out.Rows[i]) {
				corrected++
			}
		}
		for _, c := range rule.Provides() {
			out.AddColumn(c)
		}
		if corrected > 0 {
			stats.Corrected[rule.Name()] = corrected
			d.logger.Info("derivation rule corrected values",
				zap.String("rule", rule.Name()),
				zap.Int64("rows", corrected))
		}
	}
	stats.TotalProcessed = int64(out.Len())

	d.statsLock.Lock()
	d.stats = stats
	d.statsLock.Unlock()

	return out
}

// GetStats 最近一次派生的统计
func (d *FeatureDeriver) GetStats() DerivationStats {
	d.statsLock.RLock()
	defer d.statsLock.RUnlock()
	return d.stats
}

// DeriveFeatures 使用默认规则派生
func DeriveFeatures(t *Table) *Table {
	return NewFeatureDeriver(nil).Derive(t)
}

// ============ 规则实现 ============

// DaysToShipRule 发货天数 = Ship Date - Order Date
type DaysToShipRule struct{}

func (DaysToShipRule) Name() string       { return "days_to_ship" }
func (DaysToShipRule) Requires() []string { return []string{ColOrderDate, ColShipDate} }
func (DaysToShipRule) Provides() []string { return []string{ColDaysToShip} }

func (DaysToShipRule) Apply(o *Order) bool {
	o.DaysToShip.V, o.DaysToShip.Valid = 0, false
	if o.OrderDate.Valid && o.ShipDate.Valid {
		o.DaysToShip.V, o.DaysToShip.Valid = DaysBetween(o.OrderDate.V, o.ShipDate.V), true
	}
	return false
}

// DaysBetween 两个日期相差的整天数（向下取整）
func DaysBetween(from, to time.Time) int64 {
	return int64(math.Floor(to.Sub(from).Hours() / 24))
}

// CalendarRule 订单年份与年月
type CalendarRule struct{}

func (CalendarRule) Name() string       { return "calendar" }
func (CalendarRule) Requires() []string { return []string{ColOrderDate} }
func (CalendarRule) Provides() []string { return []string{ColOrderYear, ColOrderMonth} }

func (CalendarRule) Apply(o *Order) bool {
	o.OrderYear.V, o.OrderYear.Valid = 0, false
	o.OrderMonth = ""
	if o.OrderDate.Valid {
		o.OrderYear.V, o.OrderYear.Valid = int64(o.OrderDate.V.Year()), true
		o.OrderMonth = o.OrderDate.V.Format("2006-01")
	}
	return false
}

// ProfitableRule 目标标签：Profit > 0
type ProfitableRule struct{}

func (ProfitableRule) Name() string       { return "profitable" }
func (ProfitableRule) Requires() []string { return []string{ColProfit} }
func (ProfitableRule) Provides() []string { return []string{ColProfitable} }

func (ProfitableRule) Apply(o *Order) bool {
	o.Profitable.V, o.Profitable.Valid = 0, false
	if o.Profit.Valid {
		o.Profitable.Valid = true
		if o.Profit.V > 0 {
			o.Profitable.V = 1
		}
	}
	return false
}

// DiscountClampRule 折扣限制在 [0, Max]
type DiscountClampRule struct {
	Max float64
}

func (DiscountClampRule) Name() string       { return "discount_clamp" }
func (DiscountClampRule) Requires() []string { return []string{ColDiscount} }
func (DiscountClampRule) Provides() []string { return nil }

func (r DiscountClampRule) Apply(o *Order) bool {
	if !o.Discount.Valid {
		return false
	}
	clamped := math.Min(math.Max(o.Discount.V, 0), r.Max)
	if clamped == o.Discount.V {
		return false
	}
	o.Discount.V = clamped
	return true
}

// QuantityClampRule 数量至少为 Min
type QuantityClampRule struct {
	Min int64
}

func (QuantityClampRule) Name() string       { return "quantity_clamp" }
func (QuantityClampRule) Requires() []string { return []string{ColQuantity} }
func (QuantityClampRule) Provides() []string { return nil }

func (r QuantityClampRule) Apply(o *Order) bool {
	if !o.Quantity.Valid || o.Quantity.V >= r.Min {
		return false
	}
	o.Quantity.V = r.Min
	return true
}

// DaysToShipSanityRule 发货天数小于 Min 时置空
type DaysToShipSanityRule struct {
	Min int64
}

func (DaysToShipSanityRule) Name() string       { return "days_to_ship_sanity" }
func (DaysToShipSanityRule) Requires() []string { return []string{ColDaysToShip} }
func (DaysToShipSanityRule) Provides() []string { return nil }

func (r DaysToShipSanityRule) Apply(o *Order) bool {
	if !o.DaysToShip.Valid || o.DaysToShip.V >= r.Min {
		return false
	}
	o.DaysToShip.V, o.DaysToShip.Valid = 0, false
	return true
}
