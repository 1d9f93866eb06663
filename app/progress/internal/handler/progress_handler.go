package handler

import (
	"errors"
	"net/http"

	"github.com/edooria/edooria/app/progress/internal/service"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/web"
	weberrors "github.com/edooria/edooria/pkg/web/errors"
	"github.com/gin-gonic/gin"
)

// ProgressHandler 进度查询 API
// 读请求走镜像，不回源权威服务
type ProgressHandler struct {
	svc    *service.MirrorService
	logger logger.Logger
}

// NewProgressHandler 创建进度查询 API
func NewProgressHandler(svc *service.MirrorService, l logger.Logger) *ProgressHandler {
	return &ProgressHandler{
		svc:    svc,
		logger: l.Named("handler.progress"),
	}
}

// Register 注册路由
func (h *ProgressHandler) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		v1.GET("/users/:userId/mirror/sessions", h.getActiveSessions)
		v1.GET("/users/:userId/lastaccess", h.getLastAccess)
	}
}

func (h *ProgressHandler) getActiveSessions(c *gin.Context) {
	userID := c.Param("userId")

	records, err := h.svc.GetActiveSessions(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	web.Success(c, records)
}

func (h *ProgressHandler) getLastAccess(c *gin.Context) {
	userID := c.Param("userId")

	access, err := h.svc.GetLastAccess(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	web.Success(c, access)
}

func (h *ProgressHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		web.Error(c, weberrors.CodeToStatus(weberrors.CodeNotFound), weberrors.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidEvent):
		web.Error(c, weberrors.CodeToStatus(weberrors.CodeInvalidParams), weberrors.CodeInvalidParams, err.Error())
	default:
		h.logger.Error("request failed",
			"path", c.FullPath(),
			"error", err,
		)
		web.Error(c, http.StatusInternalServerError, weberrors.CodeInternalError, "internal error")
	}
}
