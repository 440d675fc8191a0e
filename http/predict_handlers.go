package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"superstore/ml"
	"superstore/pipeline"
)

const batchPreviewRows = 50

func (h *handlers) predictor(w http.ResponseWriter, r *http.Request) (*ml.Predictor, bool) {
	if h.deps.Models == nil {
		writeError(w, r, ml.ErrModelUnavailable)
		return nil, false
	}
	p, err := h.deps.Models.Predictor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return p, true
}

func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.deps.Workspace.Get(sessionID); err != nil {
		writeError(w, r, err)
		return
	}

	var in ml.ProfitInput
	if err := render.DecodeJSON(r.Body, &in); err != nil {
		badRequest(w, r, "invalid input", err)
		return
	}

	p, ok := h.predictor(w, r)
	if !ok {
		return
	}
	pred, err := p.PredictOne(in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.deps.Metrics.ObservePredictions("single", pred.Label)
	h.logPredictions(r.Context(), sessionID, "single", []int{pred.Label}, []float64{pred.Probability})
	render.JSON(w, r, pred)
}

// batchResponse 批量预测摘要，Preview 为前 50 行
type batchResponse struct {
	Rows       int               `json:"rows"`
	Profitable int               `json:"profitable"`
	Preview    []batchPreviewRow `json:"preview"`
}

type batchPreviewRow struct {
	Row         int     `json:"row"`
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

// predictBatch 上传 ; 分隔、逗号小数的文件。format=csv|xlsx 时下载带预测列的完整表
func (h *handlers) predictBatch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.deps.Workspace.Get(sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "csv", "xlsx":
	default:
		badRequest(w, r, "invalid query", nil)
		return
	}

	body, _, err := readUpload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	table, err := pipeline.ReadCSV(body, pipeline.BatchFormat())
	if err != nil {
		writeError(w, r, err)
		return
	}
	// 列检查在加载模型之前，缺列总是 400
	table, err = ml.PrepareBatch(table)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, ok := h.predictor(w, r)
	if !ok {
		return
	}
	result, err := p.PredictBatch(table)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.deps.Metrics.ObservePredictions("batch", result.Labels...)
	h.logPredictions(r.Context(), sessionID, "batch", result.Labels, result.Probabilities)

	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := pipeline.WriteCSV(&buf, result.Table, result.Columns()...); err != nil {
			writeError(w, r, err)
			return
		}
		attachment(w, "text/csv; charset=utf-8", "batch_predictions.csv")
		w.Write(buf.Bytes())
	case "xlsx":
		var buf bytes.Buffer
		if err := pipeline.WriteXLSX(&buf, result.Table, result.Columns()...); err != nil {
			writeError(w, r, err)
			return
		}
		attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "batch_predictions.xlsx")
		w.Write(buf.Bytes())
	default:
		resp := batchResponse{Rows: len(result.Labels), Profitable: result.Profitable()}
		for i := 0; i < len(result.Labels) && i < batchPreviewRows; i++ {
			resp.Preview = append(resp.Preview, batchPreviewRow{Row: i, Label: result.Labels[i], Probability: result.Probabilities[i]})
		}
		render.JSON(w, r, resp)
	}
}

func (h *handlers) batchTemplate(w http.ResponseWriter, r *http.Request) {
	attachment(w, "text/csv; charset=utf-8", "template_batch_superstore.csv")
	w.Write([]byte(ml.BatchTemplate()))
}

// logPredictions 写预测日志，失败只记录不影响响应
func (h *handlers) logPredictions(ctx context.Context, sessionID, mode string, labels []int, probas []float64) {
	if h.deps.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.deps.DB.SavePredictions(ctx, sessionID, mode, labels, probas); err != nil {
		h.logger.Warn("save predictions failed", zap.String("session", sessionID), zap.Error(err))
	}
}
