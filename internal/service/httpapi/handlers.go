package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/service/intake"
)

type updateStatusReq struct {
	Status string `json:"status"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	view, err := s.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// enqueueOrder проверяет заявку и ставит её в очередь. Заказ создаётся позже.
func (s *Server) enqueueOrder(c *gin.Context) {
	if s.enqueuer == nil {
		s.writeError(c, http.StatusServiceUnavailable, "asynchronous intake is disabled")
		return
	}
	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		s.fail(c, domain.NewValidationError("enqueue", errs...))
		return
	}
	if err := s.enqueuer.Enqueue(c.Request.Context(), req); err != nil {
		if errors.Is(err, intake.ErrPoolStopped) {
			s.writeError(c, http.StatusServiceUnavailable, "intake is shutting down")
			return
		}
		s.logger.WithError(err).WithField("order_number", req.OrderNumber).Error("failed to enqueue order")
		s.writeError(c, http.StatusInternalServerError, "failed to enqueue order")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"orderNumber": req.OrderNumber,
		"requestId":   c.GetString(requestIDKey),
	})
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	view, err := s.orders.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getOrderByNumber(c *gin.Context) {
	view, err := s.orders.GetByOrderNumber(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// updateStatus принимает статус из query (?status=) или из JSON-тела.
func (s *Server) updateStatus(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	status := c.Query("status")
	if status == "" && c.Request.ContentLength != 0 {
		var req updateStatusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			s.writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
		status = req.Status
	}
	view, err := s.orders.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) deleteOrder(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	if err := s.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listOrders(c *gin.Context) {
	req, err := parsePageRequest(c)
	if err != nil {
		s.fail(c, domain.NewValidationError("list", err))
		return
	}
	page, err := s.orders.ListOrders(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// parsePageRequest читает page, size, sort, direction и status.
// sort допускает форму "field,desc".
func parsePageRequest(c *gin.Context) (domain.PageRequest, error) {
	var req domain.PageRequest

	var err error
	if req.Page, err = queryInt(c, "page"); err != nil {
		return req, err
	}
	if req.Size, err = queryInt(c, "size"); err != nil {
		return req, err
	}

	sort, direction := c.Query("sort"), c.Query("direction")
	if field, dir, found := strings.Cut(sort, ","); found {
		sort = field
		if direction == "" {
			direction = dir
		}
	}
	req.Sort = domain.SortField(strings.TrimSpace(sort))
	if req.Desc, err = domain.ParseSortDirection(direction); err != nil {
		return req, err
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		req.Status = domain.OrderStatus(strings.ToUpper(raw))
	}
	return req, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}
