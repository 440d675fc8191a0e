package analytics

import (
	"slices"
	"sort"
	"time"

	"superstore/pipeline"
)

// Filter 全局筛选条件。空字段表示不过滤，对应列缺失时同样忽略
type Filter struct {
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
	Regions       []string   `json:"regions,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	SubCategories []string   `json:"sub_categories,omitempty"`
}

// IsZero 是否没有任何条件
func (f Filter) IsZero() bool {
	return f.From == nil && f.To == nil &&
		len(f.Regions) == 0 && len(f.Categories) == 0 && len(f.SubCategories) == 0
}

// Apply 返回满足条件的行（副本）。日期区间两端都包含，缺失日期的行在有日期条件时被排除
func (f Filter) Apply(t *pipeline.Table) *pipeline.Table {
	byDate := (f.From != nil || f.To != nil) && t.Has(pipeline.ColOrderDate)
	byRegion := len(f.Regions) > 0 && t.Has(pipeline.ColRegion)
	byCategory := len(f.Categories) > 0 && t.Has(pipeline.ColCategory)
	bySubCategory := len(f.SubCategories) > 0 && t.Has(pipeline.ColSubCategory)

	return t.Subset(func(o *pipeline.Order) bool {
		if byDate {
			if !o.OrderDate.Valid {
				return false
			}
			if f.From != nil && o.OrderDate.V.Before(*f.From) {
				return false
			}
			if f.To != nil && o.OrderDate.V.After(*f.To) {
				return false
			}
		}
		if byRegion && !slices.Contains(f.Regions, o.Region) {
			return false
		}
		if byCategory && !slices.Contains(f.Categories, o.Category) {
			return false
		}
		if bySubCategory && !slices.Contains(f.SubCategories, o.SubCategory) {
			return false
		}
		return true
	})
}

// FilterOptions 筛选控件的候选值
type FilterOptions struct {
	Regions       []string            `json:"regions"`
	Categories    []string            `json:"categories"`
	SubCategories map[string][]string `json:"sub_categories"`
	Segments      []string            `json:"segments"`
	ShipModes     []string            `json:"ship_modes"`
	MinDate       *time.Time          `json:"min_date,omitempty"`
	MaxDate       *time.Time          `json:"max_date,omitempty"`
}

// Options 收集各分类列的去重排序值；子类别按所属类别分组
func Options(t *pipeline.Table) FilterOptions {
	regions := make(map[string]struct{})
	categories := make(map[string]struct{})
	segments := make(map[string]struct{})
	shipModes := make(map[string]struct{})
	subs := make(map[string]map[string]struct{})

	for i := range t.Rows {
		o := &t.Rows[i]
		add(regions, o.Region)
		add(categories, o.Category)
		add(segments, o.Segment)
		add(shipModes, o.ShipMode)
		if o.SubCategory != "" {
			if subs[o.Category] == nil {
				subs[o.Category] = make(map[string]struct{})
			}
			subs[o.Category][o.SubCategory] = struct{}{}
		}
	}

	opts := FilterOptions{
		Regions:       sortedKeys(regions),
		Categories:    sortedKeys(categories),
		Segments:      sortedKeys(segments),
		ShipModes:     sortedKeys(shipModes),
		SubCategories: make(map[string][]string, len(subs)),
	}
	for cat, set := range subs {
		opts.SubCategories[cat] = sortedKeys(set)
	}
	opts.MinDate, opts.MaxDate = dateRange(t)
	return opts
}

// DatasetOverview 数据集概览
type DatasetOverview struct {
	Rows        int                  `json:"rows"`
	Orders      int                  `json:"orders"`
	Columns     []string             `json:"columns"`
	PeriodStart *time.Time           `json:"period_start,omitempty"`
	PeriodEnd   *time.Time           `json:"period_end,omitempty"`
	Issues      pipeline.ParseIssues `json:"parse_issues,omitempty"`
}

// Overview 行数、订单数和时间范围
func Overview(t *pipeline.Table) DatasetOverview {
	ov := DatasetOverview{
		Rows:    t.Len(),
		Orders:  t.Len(),
		Columns: slices.Clone(t.Columns),
		Issues:  t.Issues,
	}
	if t.Has(pipeline.ColOrderID) {
		ov.Orders = distinctOrders(t.Rows)
	}
	ov.PeriodStart, ov.PeriodEnd = dateRange(t)
	return ov
}

func dateRange(t *pipeline.Table) (*time.Time, *time.Time) {
	if !t.Has(pipeline.ColOrderDate) {
		return nil, nil
	}
	var lo, hi *time.Time
	for i := range t.Rows {
		d := t.Rows[i].OrderDate
		if !d.Valid {
			continue
		}
		if lo == nil || d.V.Before(*lo) {
			v := d.V
			lo = &v
		}
		if hi == nil || d.V.After(*hi) {
			v := d.V
			hi = &v
		}
	}
	return lo, hi
}

func add(set map[string]struct{}, v string) {
	if v != "" {
		set[v] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
