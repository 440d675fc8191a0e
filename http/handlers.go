package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"superstore/analytics"
	"superstore/monitoring"
	"superstore/workspace"
)

// uploadField multipart 文件字段名
const uploadField = "file"

type handlers struct {
	deps      Deps
	logger    *zap.Logger
	maxUpload int64
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":       "ok",
		"sessions":     h.deps.Workspace.Len(),
		"model_loaded": h.deps.Models != nil && h.deps.Models.Loaded(),
	})
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	sess := h.deps.Workspace.Create()
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sess.State())
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Workspace.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sess.State())
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Workspace.Delete(chi.URLParam(r, "id")) {
		writeError(w, r, workspace.ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadResponse 上传成功后的概览
type uploadResponse struct {
	Session  workspace.State           `json:"session"`
	Overview analytics.DatasetOverview `json:"overview"`
}

func (h *handlers) uploadDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.deps.Workspace.Get(id); err != nil {
		writeError(w, r, err)
		return
	}

	body, name, err := readUpload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	sess, err := h.deps.Workspace.Load(id, body, name)
	if err != nil {
		h.logger.Warn("dataset upload failed", zap.String("session", id), zap.Error(err))
		writeError(w, r, err)
		return
	}

	t := sess.Table()
	overview := analytics.Overview(t)
	h.publish(monitoring.EventDatasetLoaded, map[string]any{
		"session":     id,
		"source":      name,
		"rows":        overview.Rows,
		"cell_issues": overview.Issues,
	})
	render.JSON(w, r, uploadResponse{Session: sess.State(), Overview: overview})
}

// overviewResponse 当前数据集概览
type overviewResponse struct {
	Source   string                    `json:"source"`
	Overview analytics.DatasetOverview `json:"overview"`
}

func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	sess, t, err := h.deps.Workspace.Active(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	source := sess.Source()
	if source == "" {
		source = "default"
	}
	render.JSON(w, r, overviewResponse{Source: source, Overview: analytics.Overview(t)})
}

func (h *handlers) views(w http.ResponseWriter, r *http.Request) {
	_, t, err := h.deps.Workspace.Active(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, analytics.Views(t.Columns))
}

func (h *handlers) getFilters(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Workspace.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sess.Filter())
}

func (h *handlers) putFilters(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Workspace.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var f analytics.Filter
	if err := render.DecodeJSON(r.Body, &f); err != nil {
		badRequest(w, r, "invalid filter", err)
		return
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		badRequest(w, r, "invalid filter", errors.New("from is after to"))
		return
	}
	sess.SetFilter(f)
	render.JSON(w, r, f)
}

func (h *handlers) options(w http.ResponseWriter, r *http.Request) {
	_, t, err := h.deps.Workspace.Active(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, analytics.Options(t))
}

func (h *handlers) publish(t monitoring.EventType, data any) {
	if h.deps.Hub == nil {
		return
	}
	if err := h.deps.Hub.Publish(t, data); err != nil {
		h.logger.Warn("publish event failed", zap.String("type", string(t)), zap.Error(err))
	}
}

// readUpload 读取 multipart 的 file 字段；其他类型直接把请求体当作文件
func readUpload(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile(uploadField)
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", errNoFile
		}
		if err != nil {
			return nil, "", err
		}
		return file, filepath.Base(header.Filename), nil
	}

	if r.ContentLength == 0 {
		return nil, "", errNoFile
	}
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.csv"
	}
	return r.Body, filepath.Base(name), nil
}

// queryInt 读取正整数参数，缺省时返回 def
func queryInt(r *http.Request, key string, def, maxValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxValue {
		return 0, errors.New(key + " must be an integer between 1 and " + strconv.Itoa(maxValue))
	}
	return n, nil
}

// attachment 设置下载文件名
func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}
