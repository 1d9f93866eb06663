package handler

import (
	"errors"
	"net/http"

	"github.com/edooria/edooria/app/study/internal/service"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/web"
	weberrors "github.com/edooria/edooria/pkg/web/errors"
	"github.com/gin-gonic/gin"
)

// SessionHandler 会话 API
type SessionHandler struct {
	svc    *service.SessionService
	logger logger.Logger
}

// NewSessionHandler 创建会话 API
func NewSessionHandler(svc *service.SessionService, l logger.Logger) *SessionHandler {
	return &SessionHandler{
		svc:    svc,
		logger: l.Named("handler.session"),
	}
}

// Register 注册路由
func (h *SessionHandler) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", h.startSession)
		v1.DELETE("/sessions/:id", h.endSession)
		v1.PUT("/sessions/:id/heartbeat", h.heartbeat)
		v1.GET("/users/:userId/sessions/active", h.getActiveSession)
		v1.POST("/reconcile", h.reconcile)
	}
}

type startSessionRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	CourseID string `json:"course_id" binding:"required"`
	ModuleID string `json:"module_id"`
	LessonID string `json:"lesson_id"`
}

func (h *SessionHandler) startSession(c *gin.Context) {
	var req startSessionRequest
	if !web.BindAndValidate(c, &req) {
		return
	}

	session, err := h.svc.StartSession(c.Request.Context(), req.UserID, req.CourseID, req.ModuleID, req.LessonID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	web.Success(c, session)
}

type endSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *SessionHandler) endSession(c *gin.Context) {
	sessionID := c.Param("id")

	var req endSessionRequest
	if !web.BindAndValidate(c, &req) {
		return
	}

	session, err := h.svc.EndSession(c.Request.Context(), req.UserID, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	web.Success(c, session)
}

type heartbeatRequest struct {
	ModuleID string `json:"module_id"`
	LessonID string `json:"lesson_id"`
}

func (h *SessionHandler) heartbeat(c *gin.Context) {
	sessionID := c.Param("id")

	var req heartbeatRequest
	if !web.BindAndValidate(c, &req) {
		return
	}

	if err := h.svc.Heartbeat(c.Request.Context(), sessionID, req.ModuleID, req.LessonID); err != nil {
		h.writeError(c, err)
		return
	}

	web.Success(c, nil)
}

func (h *SessionHandler) getActiveSession(c *gin.Context) {
	userID := c.Param("userId")

	session, err := h.svc.GetActiveSession(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	web.Success(c, session)
}

// reconcile 手动触发一轮对账广播
func (h *SessionHandler) reconcile(c *gin.Context) {
	req, err := h.svc.RequestReconciliation(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	web.Success(c, gin.H{
		"request_id":      req.RequestID,
		"active_sessions": len(req.ActiveSessionIDs),
	})
}

// writeError 业务错误映射为 HTTP 响应
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	var code int
	switch {
	case errors.Is(err, service.ErrSessionConflict):
		code = weberrors.CodeConflict
	case errors.Is(err, service.ErrSessionNotFound):
		code = weberrors.CodeNotFound
	case errors.Is(err, service.ErrSessionAlreadyEnded):
		code = weberrors.CodeGone
	case errors.Is(err, service.ErrInvalidRequest):
		code = weberrors.CodeInvalidParams
	default:
		h.logger.Error("request failed",
			"path", c.FullPath(),
			"error", err,
		)
		web.Error(c, http.StatusInternalServerError, weberrors.CodeInternalError, "internal error")
		return
	}

	web.Error(c, weberrors.CodeToStatus(code), code, err.Error())
}
