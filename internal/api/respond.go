package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/fieldkit/internal/ir"
)

// codeBadRequest marks malformed requests rejected before reaching the client.
const codeBadRequest = "BAD_REQUEST"

type problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]problem{"error": {Code: code, Message: msg}})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code ir.ErrorCode) int {
	switch code {
	case ir.ErrCodeNotFound, ir.ErrCodeIndexOutOfRange:
		return http.StatusNotFound
	case ir.ErrCodeInvalidItem:
		return http.StatusBadRequest
	case ir.ErrCodeInvalidTransition:
		return http.StatusConflict
	case ir.ErrCodeRemoteFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := ir.CodeOf(err)
	if code == "" {
		code = ir.ErrCodeStore
	}
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeProblem(w, status, string(code), err.Error())
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		writeProblem(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// pathParam returns the unescaped URL parameter key.
func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil || v == "" {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "invalid "+key)
		return "", false
	}
	return v, true
}
