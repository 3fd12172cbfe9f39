package intake

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// DeadLetter — сообщение, снятое с основного потока.
type DeadLetter struct {
	Request  domain.CreateOrderRequest `json:"request"`
	Raw      []byte                    `json:"raw,omitempty"`
	Reason   string                    `json:"reason"`
	Kind     string                    `json:"kind"`
	Attempts int                       `json:"attempts"`
	FailedAt time.Time                 `json:"failedAt"`
}

// DeadLetterSink принимает сообщения, которые больше не будут обработаны.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, letter DeadLetter) error
}

// MemorySink хранит dead letters в памяти. Используется без Kafka и в тестах.
type MemorySink struct {
	mu      sync.Mutex
	letters []DeadLetter
}

// NewMemorySink создаёт пустой sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// DeadLetter добавляет сообщение в конец списка.
func (s *MemorySink) DeadLetter(_ context.Context, letter DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, letter)
	return nil
}

// Letters возвращает копию накопленных сообщений.
func (s *MemorySink) Letters() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetter, len(s.letters))
	copy(out, s.letters)
	return out
}
