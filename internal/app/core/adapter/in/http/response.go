package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// internalErrorMessage 不對外揭露內部錯誤細節
const internalErrorMessage = "erro interno"

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"campo,omitempty"`
}

// writeJSON 輸出 JSON 成功回應
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 依錯誤種類決定狀態碼，統一輸出 {"error": "..."}
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := s.classify(err)
	if code == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeJSON(w, code, body)
}

func (s *Server) classify(err error) (int, errorResponse) {
	var ve *domain.ValidationError
	var be *badRequestError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorResponse{Error: ve.Message, Field: ve.Field}
	case errors.As(err, &be):
		return http.StatusBadRequest, errorResponse{Error: be.Error()}
	case errors.Is(err, domain.ErrDuplicateAccountName):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrAccountInUse):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	}
	return http.StatusInternalServerError, errorResponse{Error: internalErrorMessage}
}

// badRequestError 請求本身格式錯誤 (JSON、路徑參數、查詢參數)
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}
