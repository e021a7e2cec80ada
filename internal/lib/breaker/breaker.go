// Package breaker реализует предохранитель (circuit breaker) для вызовов внешнего AI-сервиса.
//
// Состояния: CLOSED (по умолчанию) -> OPEN после FailureThreshold последовательных
// сбоев -> HALF_OPEN по прошествии ResetTimeout с момента последнего сбоя ->
// CLOSED при первом успехе пробного запроса или снова OPEN при его сбое.
//
// В состоянии HALF_OPEN пропускается ровно один пробный запрос; остальные
// получают отказ до тех пор, пока проба не завершится.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Значения по умолчанию.
const (
	FailureThreshold = 5
	ResetTimeout     = 60 * time.Second
)

// ErrOpen возвращается Execute, когда предохранитель не пропускает запрос.
var ErrOpen = errors.New("circuit breaker is open")

// State — состояние предохранителя.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Breaker — разделяемое состояние предохранителя одного процесса.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	probeInFlight bool

	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
	onChange     func(from, to State)
}

// Option настраивает Breaker.
type Option func(*Breaker)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateHook регистрирует функцию, вызываемую при каждой смене состояния.
// Хук вызывается под блокировкой и не должен обращаться к Breaker.
func WithStateHook(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New создаёт предохранитель в состоянии CLOSED.
func New(threshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = FailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = ResetTimeout
	}
	b := &Breaker{
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CanRequest сообщает, можно ли выполнить вызов прямо сейчас.
func (b *Breaker) CanRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return false
		}
		b.setState(StateHalfOpen)
		b.probeInFlight = true
		return true
	default:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
}

// OnSuccess сбрасывает счётчик сбоев и закрывает предохранитель.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probeInFlight = false
	b.setState(StateClosed)
}

// OnFailure учитывает серверный сбой внешнего сервиса.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	wasProbe := b.state == StateHalfOpen
	b.probeInFlight = false
	if wasProbe || b.failures >= b.threshold {
		b.setState(StateOpen)
	}
}

// OnNeutral завершает вызов, исход которого ничего не говорит о доступности
// сервиса (ошибка клиента 4xx, отмена контекста вызывающей стороной).
// Состояние и счётчик не меняются, но слот пробного запроса освобождается.
func (b *Breaker) OnNeutral() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeInFlight = false
}

// State возвращает текущее состояние.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures возвращает число последовательных сбоев.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset возвращает предохранитель в исходное состояние.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.lastFailure = time.Time{}
	b.probeInFlight = false
	b.setState(StateClosed)
}

// Execute выполняет fn под защитой предохранителя.
//
// isFailure решает, считается ли ошибка fn сбоем внешнего сервиса. Ошибки,
// для которых isFailure возвращает false, не влияют на состояние. Повторных
// попыток Execute не делает: политика ретраев остаётся за вызывающей стороной.
// Паника в fn учитывается как сбой и передаётся дальше.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error, isFailure func(error) bool) error {
	if !b.CanRequest() {
		return ErrOpen
	}

	done := false
	defer func() {
		if !done {
			b.OnFailure()
		}
	}()
	err := fn(ctx)
	done = true

	switch {
	case err == nil:
		b.OnSuccess()
	case isFailure != nil && isFailure(err):
		b.OnFailure()
	default:
		b.OnNeutral()
	}
	return err
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
