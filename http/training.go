package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"superstore/db"
	"superstore/ml"
	"superstore/monitoring"
	"superstore/pipeline"
)

// trainResponse 训练结果
type trainResponse struct {
	*ml.TrainingReport
	Source string `json:"source"`
	LogID  int64  `json:"log_id,omitempty"`
}

// train 用上传的文件训练；未上传时使用配置的训练数据集
func (h *handlers) train(w http.ResponseWriter, r *http.Request) {
	if h.deps.Trainer == nil {
		writeError(w, r, errors.New("trainer not configured"))
		return
	}

	start := time.Now()
	report, source, err := h.runTraining(r)
	h.deps.Metrics.ObserveTraining(time.Since(start), err)
	if err != nil {
		h.logger.Warn("training failed", zap.Error(err))
		writeError(w, r, err)
		return
	}

	resp := trainResponse{TrainingReport: report, Source: source}
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		id, err := h.deps.DB.SaveTrainingLog(ctx, db.TrainingLogFromReport(report))
		cancel()
		if err != nil {
			h.logger.Warn("save training log failed", zap.Error(err))
		}
		resp.LogID = id
	}

	if h.deps.Models != nil {
		h.deps.Models.Invalidate()
	}
	h.publish(monitoring.EventTrainingCompleted, map[string]any{
		"source":     source,
		"model_path": report.ModelPath,
		"n_train":    report.NTrain,
		"n_test":     report.NTest,
		"accuracy":   report.Metrics.Accuracy,
		"f1":         report.Metrics.F1,
	})
	h.publish(monitoring.EventModelReloaded, map[string]any{"model_path": report.ModelPath})

	render.JSON(w, r, resp)
}

func (h *handlers) runTraining(r *http.Request) (*ml.TrainingReport, string, error) {
	body, name, err := readUpload(r)
	switch {
	case err == nil:
		defer body.Close()
		table, err := pipeline.ReadCSV(body, pipeline.SuperstoreFormat())
		if err != nil {
			return nil, name, err
		}
		report, err := h.deps.Trainer.TrainTable(r.Context(), table)
		return report, name, err
	case errors.Is(err, errNoFile) && h.deps.TrainingDataset != "":
		report, err := h.deps.Trainer.Train(r.Context(), h.deps.TrainingDataset)
		return report, h.deps.TrainingDataset, err
	default:
		return nil, "", err
	}
}

func (h *handlers) trainingLog(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil {
		writeError(w, r, errNoDatabase)
		return
	}
	limit, err := queryInt(r, "limit", 20, 1000)
	if err != nil {
		badRequest(w, r, "invalid query", err)
		return
	}
	logs, err := h.deps.DB.LoadTrainingLog(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"entries": logs})
}
