package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/service/intake"
)

// OrderService — операции жизненного цикла, доступные через HTTP.
type OrderService interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.OrderView, error)
	UpdateStatus(ctx context.Context, id int64, rawStatus string) (domain.OrderView, error)
	GetByID(ctx context.Context, id int64) (domain.OrderView, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (domain.OrderView, error)
	ListOrders(ctx context.Context, req domain.PageRequest) (domain.Page[domain.OrderView], error)
	DeleteOrder(ctx context.Context, id int64) error
}

// Server — HTTP API заказов поверх gin.
type Server struct {
	engine   *gin.Engine
	orders   OrderService
	enqueuer intake.Enqueuer
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Server.
type Option func(*Server)

// WithEnqueuer подключает асинхронный приём заказов.
func WithEnqueuer(enqueuer intake.Enqueuer) Option {
	return func(s *Server) {
		s.enqueuer = enqueuer
	}
}

// WithLogger задаёт логгер запросов.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет часы для поля timestamp в ответах с ошибкой.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer собирает gin.Engine с маршрутами /api/v1/orders.
func NewServer(orders OrderService, opts ...Option) *Server {
	s := &Server{
		orders: orders,
		logger: log.WithField("component", "http-api"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), gin.CustomRecovery(s.handlePanic))
	r.NoRoute(func(c *gin.Context) {
		s.writeError(c, http.StatusNotFound, "resource not found")
	})
	s.engine = r
	s.registerRoutes()
	return s
}

// Engine возвращает http.Handler для http.Server.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		orders.POST("", s.createOrder)
		orders.POST("/async", s.enqueueOrder)
		orders.GET("", s.listOrders)
		orders.GET("/:id", s.getOrder)
		orders.GET("/number/:orderNumber", s.getOrderByNumber)
		orders.PUT("/:id/status", s.updateStatus)
		orders.DELETE("/:id", s.deleteOrder)
	}
}
