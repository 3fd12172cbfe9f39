package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

func statusOf(err error) int {
	switch kind := domain.KindOf(err); {
	case errors.Is(kind, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(kind, domain.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	s.writeError(c, statusOf(err), domain.PublicMessage(err))
}

func (s *Server) writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Timestamp: s.now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      c.Request.URL.Path,
	})
}
