package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего номера заказа.
	ErrOrderNumberRequired = errors.New("orderNumber is required")
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = errors.New("productName is required")
	// Ошибка при некорректном количестве товара (< 1).
	ErrQuantityInvalid = errors.New("quantity must be at least 1")
	// Ошибка, если цена за единицу не положительная.
	ErrUnitPriceInvalid = errors.New("unitPrice must be greater than zero")
	// Ошибка неизвестного статуса заказа.
	ErrStatusInvalid = errors.New("unknown order status")
	// Ошибка некорректных параметров страницы.
	ErrPageInvalid = errors.New("page must be >= 0 and size must be >= 0")
	// Ошибка неподдерживаемого поля сортировки.
	ErrSortInvalid = errors.New("unsupported sort field")

	// ErrOrderNotFound возвращается хранилищем, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNumberConflict возвращается хранилищем при нарушении уникальности order_number.
	ErrOrderNumberConflict = errors.New("order number already exists")
)

// Виды ошибок, которые пересекают границу сервиса заказов.
var (
	// ErrValidation — некорректные входные данные, исправимо клиентом.
	ErrValidation = errors.New("validation error")
	// ErrDuplicateOrder — заказ с таким номером уже существует.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrNotFound — заказ с указанным идентификатором отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrInternal — неожиданная ошибка хранилища или инфраструктуры.
	ErrInternal = errors.New("internal error")
)

// Error — типизированная ошибка сервиса заказов.
//
// Kind — один из ErrValidation, ErrDuplicateOrder, ErrNotFound, ErrInternal.
// Err сохраняет исходную причину для диагностики.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap возвращает исходную причину.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с её видом.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewValidationError собирает ошибку валидации из списка замечаний.
func NewValidationError(op string, errs ...error) *Error {
	return &Error{
		Kind:    ErrValidation,
		Op:      op,
		Message: "validation failed",
		Err:     errors.Join(errs...),
	}
}

// NewDuplicateOrderError сообщает о конфликте бизнес-ключа.
func NewDuplicateOrderError(op, orderNumber string, cause error) *Error {
	return &Error{
		Kind:    ErrDuplicateOrder,
		Op:      op,
		Message: fmt.Sprintf("order already exists with number: %s", orderNumber),
		Err:     cause,
	}
}

// NewNotFoundError сообщает об отсутствии заказа с указанным id.
func NewNotFoundError(op string, id int64) *Error {
	return &Error{
		Kind:    ErrNotFound,
		Op:      op,
		Message: fmt.Sprintf("order not found with id: %d", id),
		Err:     ErrOrderNotFound,
	}
}

// NewInternalError оборачивает неожиданную ошибку хранилища или инфраструктуры.
func NewInternalError(op, message string, cause error) *Error {
	return &Error{
		Kind:    ErrInternal,
		Op:      op,
		Message: message,
		Err:     cause,
	}
}

// KindOf возвращает вид ошибки. Нетипизированные ошибки считаются внутренними.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Kind != nil {
		return typed.Kind
	}
	return ErrInternal
}

// IsRetryable сообщает, имеет ли смысл повторить операцию.
// Повторять имеет смысл только внутренние (временные) ошибки.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(KindOf(err), ErrInternal)
}

// PublicMessage возвращает сообщение, безопасное для отдачи клиенту.
// Детали внутренних ошибок наружу не выходят.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if !errors.As(err, &typed) || errors.Is(typed.Kind, ErrInternal) {
		return "unexpected error occurred while processing the request"
	}
	if errors.Is(typed.Kind, ErrValidation) && typed.Err != nil {
		return typed.Message + ": " + strings.ReplaceAll(typed.Err.Error(), "\n", "; ")
	}
	return typed.Message
}
