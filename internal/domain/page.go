package domain

import (
	"math"
	"strings"
)

const (
	// DefaultPageSize используется, если размер страницы не задан.
	DefaultPageSize = 20
	// MaxPageSize ограничивает размер одной страницы.
	MaxPageSize = 100
)

// SortField — поле сортировки при постраничной выборке.
type SortField string

const (
	SortByID          SortField = "id"
	SortByCreatedAt   SortField = "createdAt"
	SortByOrderNumber SortField = "orderNumber"
	SortByTotalValue  SortField = "totalValue"
	SortByStatus      SortField = "status"
)

// Valid проверяет, что поле сортировки поддерживается.
func (f SortField) Valid() bool {
	switch f {
	case SortByID, SortByCreatedAt, SortByOrderNumber, SortByTotalValue, SortByStatus:
		return true
	default:
		return false
	}
}

// PageRequest задаёт параметры постраничной выборки. Page считается с нуля.
type PageRequest struct {
	Page   int
	Size   int
	Sort   SortField
	Desc   bool
	Status OrderStatus
}

// ParseSortDirection возвращает true для убывающей сортировки ("desc").
func ParseSortDirection(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, ErrSortInvalid
	}
}

// Normalize подставляет значения по умолчанию и проверяет параметры.
func (p PageRequest) Normalize() (PageRequest, []error) {
	var errs []error

	if p.Page < 0 || p.Size < 0 {
		errs = append(errs, ErrPageInvalid)
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	// Смещение Page*Size должно помещаться в int.
	if p.Page > math.MaxInt/p.Size {
		errs = append(errs, ErrPageInvalid)
	}
	if p.Sort == "" {
		p.Sort = SortByID
	}
	if !p.Sort.Valid() {
		errs = append(errs, ErrSortInvalid)
	}
	if p.Status != "" && !p.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	return p, errs
}

// Offset возвращает смещение первой записи страницы.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page — страница результатов с метаданными.
type Page[T any] struct {
	Items         []T   `json:"items"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// NewPage собирает страницу и вычисляет количество страниц.
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = make([]T, 0)
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Items:         items,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// MapPage преобразует элементы страницы, сохраняя метаданные.
func MapPage[T, R any](page Page[T], fn func(T) R) Page[R] {
	items := make([]R, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, fn(item))
	}
	return Page[R]{
		Items:         items,
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages,
	}
}
