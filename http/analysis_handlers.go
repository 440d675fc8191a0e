package http

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"gonum.org/v1/plot/vg"

	"superstore/analytics"
	"superstore/pipeline"
)

const (
	defaultTopN  = 10
	maxTopN      = 100
	chartWidth   = 800
	chartHeight  = 450
	maxChartSide = 4000
)

// viewResponse 一个汇总视图。所需列缺失时 Available=false，Data 为空
type viewResponse struct {
	View      string           `json:"view"`
	Available bool             `json:"available"`
	Missing   []string         `json:"missing,omitempty"`
	Filter    analytics.Filter `json:"filter"`
	Rows      int              `json:"rows"`
	Data      any              `json:"data"`
}

// filtered 会话当前表应用筛选后的结果，出错时已写响应
func (h *handlers) filtered(w http.ResponseWriter, r *http.Request) (*pipeline.Table, analytics.Filter, bool) {
	t, f, err := h.deps.Workspace.Filtered(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, f, false
	}
	return t, f, true
}

func (h *handlers) renderView(w http.ResponseWriter, r *http.Request, view string, compute func(t *pipeline.Table) any) {
	t, f, ok := h.filtered(w, r)
	if !ok {
		return
	}
	caps := analytics.Views(t.Columns)
	resp := viewResponse{View: view, Available: caps.Can(view), Filter: f, Rows: t.Len()}
	if resp.Available {
		resp.Data = compute(t)
	} else {
		resp.Missing = caps.Missing[view]
	}
	render.JSON(w, r, resp)
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	h.renderView(w, r, analytics.ViewSummary, func(t *pipeline.Table) any {
		return analytics.Summarize(t)
	})
}

func (h *handlers) categoryRollup(w http.ResponseWriter, r *http.Request) {
	h.renderView(w, r, analytics.ViewCategoryRollup, func(t *pipeline.Table) any {
		return analytics.CategoryRollup(t)
	})
}

func (h *handlers) topSubCategories(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n", defaultTopN, maxTopN)
	if err != nil {
		badRequest(w, r, "invalid query", err)
		return
	}
	h.renderView(w, r, analytics.ViewTopSubCategories, func(t *pipeline.Table) any {
		return analytics.TopSubCategorySummary(t, n)
	})
}

func (h *handlers) monthlyTrend(w http.ResponseWriter, r *http.Request) {
	h.renderView(w, r, analytics.ViewMonthlyTrend, func(t *pipeline.Table) any {
		return analytics.MonthlyTrend(t)
	})
}

func (h *handlers) scatter(w http.ResponseWriter, r *http.Request) {
	h.renderView(w, r, analytics.ViewSalesProfit, func(t *pipeline.Table) any {
		return analytics.SalesProfitPoints(t)
	})
}

// chart PNG 图表。所需列缺失时返回 204
func (h *handlers) chart(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n", defaultTopN, maxTopN)
	if err != nil {
		badRequest(w, r, "invalid query", err)
		return
	}
	width, err := queryInt(r, "width", chartWidth, maxChartSide)
	if err != nil {
		badRequest(w, r, "invalid query", err)
		return
	}
	height, err := queryInt(r, "height", chartHeight, maxChartSide)
	if err != nil {
		badRequest(w, r, "invalid query", err)
		return
	}

	t, _, ok := h.filtered(w, r)
	if !ok {
		return
	}
	p, err := analytics.Chart(chi.URLParam(r, "chart"), t, n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := analytics.RenderPNG(&buf, p, vg.Points(float64(width)), vg.Points(float64(height))); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// exportFiltered 导出筛选后的数据，按后缀选择 CSV 或 xlsx
func (h *handlers) exportFiltered(w http.ResponseWriter, r *http.Request) {
	t, _, ok := h.filtered(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if strings.HasSuffix(r.URL.Path, ".xlsx") {
		if err := pipeline.WriteXLSX(&buf, t); err != nil {
			writeError(w, r, err)
			return
		}
		attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "superstore_filtered.xlsx")
	} else {
		if err := pipeline.WriteCSV(&buf, t); err != nil {
			writeError(w, r, err)
			return
		}
		attachment(w, "text/csv; charset=utf-8", "superstore_filtered.csv")
	}
	w.Write(buf.Bytes())
}

// exportTopSubCategories 前 N 子类别汇总表
func (h *handlers) exportTopSubCategories(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n", defaultTopN, maxTopN)
	if err != nil {
		badRequest(w, r, "invalid query", err)
		return
	}
	t, _, ok := h.filtered(w, r)
	if !ok {
		return
	}
	caps := analytics.Views(t.Columns)
	if !caps.Can(analytics.ViewTopSubCategories) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Write([]string{"Sub-Category", "Sales", "Profit", "Margin%", "Orders"})
	for _, s := range analytics.TopSubCategorySummary(t, n) {
		cw.Write([]string{
			s.SubCategory,
			strconv.FormatFloat(s.Sales, 'f', -1, 64),
			strconv.FormatFloat(s.Profit, 'f', -1, 64),
			strconv.FormatFloat(s.MarginPct, 'f', -1, 64),
			strconv.Itoa(s.Orders),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		writeError(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", "top"+strconv.Itoa(n)+"_subcategory.csv")
	w.Write(buf.Bytes())
}
