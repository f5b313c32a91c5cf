package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/business/xauth"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/storage/xkv"
)

// 错误响应的 error 字段
const (
	badRequestError       = "BadRequestException"
	notFoundError         = "NotFoundException"
	methodNotAllowedError = "MethodNotAllowedException"
	internalError         = "InternalServerErrorException"
	unavailableError      = "ServiceUnavailableException"
)

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = time.Second
	healthKey     = "healthz"
)

// ErrorBody 非 401、429 的错误响应体。
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

type meResponse struct {
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

type sessionsResponse struct {
	Sessions []xauth.Session `json:"sessions"`
}

type revokeResponse struct {
	Revoked int `json:"revoked"`
}

type healthResponse struct {
	Status string `json:"status"`
	Actors int    `json:"actors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, ErrorBody{Error: kind, Message: msg, Status: status})
}

// writeServiceError 认证错误按 401 返回，其余按 500 并记录日志。
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ae *xauth.AuthError
	if errors.As(err, &ae) {
		xauth.WriteUnauthorized(w, r, ae)
		return
	}
	s.logger.Error(r.Context(), op+" failed", xlog.Err(err))
	writeError(w, http.StatusInternalServerError, internalError, "Internal server error")
}

func decodeRefreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, badRequestError, "Invalid request body")
		return "", false
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, badRequestError, "Refresh token is required")
		return "", false
	}
	return req.RefreshToken, true
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeRefreshToken(w, r)
	if !ok {
		return
	}
	access, err := s.issuer.Refresh(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeRefreshToken(w, r)
	if !ok {
		return
	}
	if err := s.issuer.Logout(r.Context(), token); err != nil {
		s.writeServiceError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := xauth.PayloadFrom(r.Context())
	if !ok {
		xauth.WriteUnauthorized(w, r, &xauth.AuthError{Reason: xauth.ReasonMissingToken})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: p.UserID, ExpiresAt: p.ExpiresAt})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := xauth.PayloadFrom(r.Context())
	if !ok {
		xauth.WriteUnauthorized(w, r, &xauth.AuthError{Reason: xauth.ReasonMissingToken})
		return
	}
	sessions, err := s.sessions.List(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, r, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []xauth.Session{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := xauth.PayloadFrom(r.Context())
	if !ok {
		xauth.WriteUnauthorized(w, r, &xauth.AuthError{Reason: xauth.ReasonMissingToken})
		return
	}
	n, err := s.sessions.RevokeAll(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, r, "revoke sessions", err)
		return
	}
	s.logger.Info(r.Context(), "revoked all sessions", slog.Int("count", n))
	writeJSON(w, http.StatusOK, revokeResponse{Revoked: n})
}

// handleHealth 读一次存储确认可用，key 不存在视为正常。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if _, err := s.backend.store.Get(ctx, healthKey); err != nil && !xkv.IsNotFound(err) {
		s.logger.Warn(r.Context(), "health check failed", xlog.Err(err))
		writeError(w, http.StatusServiceUnavailable, unavailableError, "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Actors: s.registry.Active()})
}
