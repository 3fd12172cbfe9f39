package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// HeaderRequestID — заголовок корреляции запросов.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

// requestID принимает входящий X-Request-ID или генерирует новый.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func accessLog(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(started).String(),
			"request_id": c.GetString(requestIDKey),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

func (s *Server) handlePanic(c *gin.Context, recovered any) {
	s.logger.WithField("panic", recovered).WithField("request_id", c.GetString(requestIDKey)).Error("handler panic")
	s.writeError(c, http.StatusInternalServerError, "unexpected error occurred while processing the request")
}
