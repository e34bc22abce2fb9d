package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat-go/internal/config"
	"docchat-go/internal/service"
	"docchat-go/pkg/log"
)

// GuestHandler 负责访客会话的创建与续期。
type GuestHandler struct {
	guestService service.GuestService
}

// NewGuestHandler 创建一个新的 GuestHandler 实例。
func NewGuestHandler(guestService service.GuestService) *GuestHandler {
	return &GuestHandler{guestService: guestService}
}

// StartSession 创建或续期一个访客会话，并通过 Cookie 下发会话令牌。
// 已登录的请求不需要访客会话，直接返回成功。
func (h *GuestHandler) StartSession(c *gin.Context) {
	if _, ok := currentUser(c); ok {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "已登录，无需访客会话", "data": nil})
		return
	}

	maxAge := config.Conf.Guest.SessionTTLHours * 3600

	// 已有会话则只做续期
	if existing := guestToken(c); existing != "" {
		if err := h.guestService.TouchSession(c.Request.Context(), existing); err != nil {
			log.Errorf("StartSession: 续期访客会话失败, %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "访客会话续期失败"})
			return
		}
		c.SetCookie(GuestCookieName, existing, maxAge, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "访客会话已续期", "data": nil})
		return
	}

	sessionToken, err := h.guestService.CreateSession(c.Request.Context())
	if err != nil {
		log.Errorf("StartSession: 创建访客会话失败, %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建访客会话失败"})
		return
	}

	c.SetCookie(GuestCookieName, sessionToken, maxAge, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "访客会话已创建", "data": nil})
}

// EndSession 主动结束访客会话并清理其全部数据。
func (h *GuestHandler) EndSession(c *gin.Context) {
	sessionToken := guestToken(c)
	if sessionToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "没有访客会话"})
		return
	}

	if err := h.guestService.Teardown(c.Request.Context(), sessionToken); err != nil {
		log.Errorf("EndSession: 清理访客会话失败, %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "清理访客会话失败"})
		return
	}

	c.SetCookie(GuestCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "访客会话已结束", "data": nil})
}
