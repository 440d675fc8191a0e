package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"superstore/analytics"
	"superstore/ml"
	"superstore/pipeline"
	"superstore/workspace"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file uploaded")
	errNoDatabase  = errors.New("training log is disabled")
)

// ErrResponse 错误响应
type ErrResponse struct {
	Status  int      `json:"status"`
	Error   string   `json:"error"`
	Detail  string   `json:"detail,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

// errorResponse 把领域错误映射为状态码
func errorResponse(err error) *ErrResponse {
	var ve *ml.ValidationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		return &ErrResponse{Status: http.StatusBadRequest, Error: "validation failed", Detail: ve.Error(),
			Missing: ve.Missing, Invalid: ve.Invalid}
	case errors.Is(err, pipeline.ErrUnreadable):
		return &ErrResponse{Status: http.StatusUnprocessableEntity, Error: "file could not be read", Detail: err.Error()}
	case errors.Is(err, ml.ErrInsufficientData):
		return &ErrResponse{Status: http.StatusUnprocessableEntity, Error: "cannot train on this data", Detail: err.Error()}
	case errors.As(err, &maxBytes):
		return &ErrResponse{Status: http.StatusRequestEntityTooLarge, Error: "upload too large", Detail: err.Error()}
	case errors.Is(err, ml.ErrModelUnavailable):
		return &ErrResponse{Status: http.StatusServiceUnavailable, Error: "model unavailable", Detail: err.Error()}
	case errors.Is(err, workspace.ErrSessionNotFound):
		return &ErrResponse{Status: http.StatusNotFound, Error: "session not found", Detail: err.Error()}
	case errors.Is(err, analytics.ErrUnknownChart):
		return &ErrResponse{Status: http.StatusNotFound, Error: "unknown chart", Detail: err.Error()}
	case errors.Is(err, workspace.ErrNoDataset):
		return &ErrResponse{Status: http.StatusConflict, Error: "no dataset loaded", Detail: "upload a file first"}
	case errors.Is(err, errRateLimited):
		return &ErrResponse{Status: http.StatusTooManyRequests, Error: err.Error()}
	case errors.Is(err, errNoFile):
		return &ErrResponse{Status: http.StatusBadRequest, Error: err.Error()}
	case errors.Is(err, errNoDatabase):
		return &ErrResponse{Status: http.StatusNotImplemented, Error: err.Error()}
	default:
		return &ErrResponse{Status: http.StatusInternalServerError, Error: "internal server error", Detail: err.Error()}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	render.Render(w, r, errorResponse(err))
}

// badRequest 请求参数错误
func badRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	resp := &ErrResponse{Status: http.StatusBadRequest, Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	render.Render(w, r, resp)
}
