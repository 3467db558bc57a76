package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without calling the guarded function while the breaker
// is open or its half-open probe budget is spent.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold    int           // consecutive failures that open the circuit
	SuccessThreshold    int           // half-open successes that close it again
	Timeout             time.Duration // open period before probing
	MaxRequestsHalfOpen int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 3,
	}
}

// CircuitBreaker stops calling a failing dependency for a while.
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenRequests int
	changedAt        time.Time

	onStateChange func(from, to State)
}

func New(config Config) *CircuitBreaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxRequestsHalfOpen <= 0 {
		config.MaxRequestsHalfOpen = def.MaxRequestsHalfOpen
	}
	return &CircuitBreaker{
		config:    config,
		now:       time.Now,
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// OnStateChange registers fn, called synchronously under no lock after every
// transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Execute runs fn unless the circuit is open. Cancellation of ctx is not
// counted against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.record(true)
	case ctx.Err() != nil:
		cb.release()
	default:
		cb.record(false)
	}
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, changed := cb.transition(StateClosed)
	fn := cb.onStateChange
	cb.mu.Unlock()
	if changed && fn != nil {
		fn(from, StateClosed)
	}
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	var (
		from    State
		changed bool
	)
	if cb.state == StateOpen && cb.now().Sub(cb.changedAt) >= cb.config.Timeout {
		from, changed = cb.transition(StateHalfOpen)
	}

	var err error
	switch cb.state {
	case StateOpen:
		err = ErrOpen
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxRequestsHalfOpen {
			err = fmt.Errorf("%w: half-open probe limit reached", ErrOpen)
		} else {
			cb.halfOpenRequests++
		}
	}
	fn := cb.onStateChange
	to := cb.state
	cb.mu.Unlock()

	if changed && fn != nil {
		fn(from, to)
	}
	return err
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	var (
		from    State
		changed bool
	)
	if success {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
			from, changed = cb.transition(StateClosed)
		}
	} else {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			from, changed = cb.transition(StateOpen)
		}
	}
	fn := cb.onStateChange
	to := cb.state
	cb.mu.Unlock()

	if changed && fn != nil {
		fn(from, to)
	}
}

// release returns a half-open probe slot without judging the dependency.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	if cb.state == StateHalfOpen && cb.halfOpenRequests > 0 {
		cb.halfOpenRequests--
	}
	cb.mu.Unlock()
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) (State, bool) {
	from := cb.state
	if from == to {
		return from, false
	}
	cb.state = to
	cb.changedAt = cb.now()
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenRequests = 0
	return from, true
}
