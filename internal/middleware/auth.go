package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"storefront-sync/internal/dto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LocalToken закрывает локальный API общим токеном. Пустой токен отключает проверку.
func LocalToken(token string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok || got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.BaseError{Code: "unauthorized", Message: "missing or invalid Authorization header"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Warn("local api token mismatch", zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.BaseError{Code: "unauthorized", Message: "invalid token"})
			return
		}
		c.Next()
	}
}

// ExtractBearerToken достаёт токен из "Bearer <token>", снимая кавычки
// и всё, что прилеплено после запятой или пробела.
func ExtractBearerToken(authz string) (string, bool) {
	scheme, rest, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	t := strings.Trim(strings.TrimSpace(rest), " \"'")
	if i := strings.IndexAny(t, ", "); i >= 0 {
		t = t[:i]
	}
	return strings.Trim(t, " \"'"), true
}
