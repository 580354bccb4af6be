package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/solcraft/walletauth/core"
	"github.com/solcraft/walletauth/service"
)

const (
	headerRequestID = "X-Request-ID"

	ctxKeyRequestID = "requestID"
	ctxKeySession   = "session"
	ctxKeyToken     = "token"
)

// AuthMiddleware creates middleware that validates bearer credentials
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := authService.ValidateCredential(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgTokenExpired})
			case isCredentialError(err):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgUnauthorized})
			default:
				log.Error().Err(err).Str("request_id", requestID(c)).Msg("failed to validate credential")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
			}
			return
		}

		c.Set(ctxKeySession, session)
		c.Set(ctxKeyToken, token)

		c.Next()
	}
}

func sessionFrom(c *gin.Context) (core.Session, bool) {
	v, ok := c.Get(ctxKeySession)
	if !ok {
		return core.Session{}, false
	}
	session, ok := v.(core.Session)
	return session, ok
}

// RequestLogger tags every request with an id and logs it once it completes
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Client ids end up in logs, so anything but a UUID is replaced
		id := c.GetHeader(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)

		c.Next()

		var evt *zerolog.Event
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			evt = log.Warn()
		} else {
			evt = log.Debug()
		}
		evt.Str("request_id", id).
			Dur("latency", time.Since(start)).
			Str("remote_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("uri", c.Request.URL.Path).
			Int("status", status).
			Msg("request")
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}

// LimitBody caps the size of request bodies
func LimitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
