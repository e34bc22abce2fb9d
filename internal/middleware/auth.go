// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat-go/internal/service"
	"docchat-go/pkg/database"
	"docchat-go/pkg/token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, tokenString, ok := extractClaims(c, jwtManager)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		// 已登出的 token 在黑名单中
		if blacklisted(c.Request.Context(), tokenString) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token 已失效"})
			return
		}

		// 使用 claims 中的用户名从数据库获取完整的用户信息
		user, err := userService.GetProfile(claims.Username)
		if err != nil {
			// 如果根据 token 中的用户信息无法找到用户，说明该用户可能已被删除
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "用户不存在"})
			return
		}

		c.Set("user", user)
		c.Set("claims", claims)
		c.Next()
	}
}

// OptionalAuth 是 AuthMiddleware 的宽松变体：带有效 token 时填充用户上下文，
// 没有 token 或 token 无效时不拦截请求，留给访客会话处理。
func OptionalAuth(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, tokenString, ok := extractClaims(c, jwtManager)
		if !ok || blacklisted(c.Request.Context(), tokenString) {
			c.Next()
			return
		}

		user, err := userService.GetProfile(claims.Username)
		if err != nil {
			c.Next()
			return
		}

		c.Set("user", user)
		c.Set("claims", claims)
		c.Next()
	}
}

func extractClaims(c *gin.Context, jwtManager *token.JWTManager) (*token.CustomClaims, string, bool) {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return nil, "", false
	}
	tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, "", false
	}
	return claims, tokenString, true
}

func blacklisted(ctx context.Context, tokenString string) bool {
	exists, err := database.RDB.Exists(ctx, "blacklist:"+tokenString).Result()
	return err == nil && exists > 0
}
