// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"github.com/gin-gonic/gin"

	"docchat-go/internal/model"
	"docchat-go/internal/service"
)

// GuestCookieName 是访客会话令牌所在的 Cookie 名。
const GuestCookieName = "guest_session"

// currentUser 返回认证中间件放入上下文的用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}

// guestToken 返回请求携带的访客会话令牌，没有时为空串。
func guestToken(c *gin.Context) string {
	cookie, err := c.Cookie(GuestCookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// resolveNamespace 根据请求身份决定文档命名空间。
// 登录身份优先；否则回退访客会话；两者皆无时返回 service.ErrMissingIdentity。
func resolveNamespace(c *gin.Context) (string, error) {
	if user, ok := currentUser(c); ok {
		return service.UserNamespace(user.ID), nil
	}
	return service.ResolveNamespace(0, false, guestToken(c))
}
