package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kbukum/depguard/logger"
	"github.com/kbukum/depguard/validation"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows requests through to test recovery.
	StateHalfOpen
)

// String returns the state name.
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

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Baseline breaker settings used for any field left at zero.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultRecoveryTimeout  = 60 * time.Second
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker for metrics/logging.
	Name string `validate:"required"`
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `validate:"gte=0"`
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int `validate:"gte=0"`
	// RecoveryTimeout is how long the circuit stays open before a probe is allowed.
	RecoveryTimeout time.Duration `validate:"gte=0"`
	// HalfOpenMaxCalls caps concurrent probes in half-open. Zero means no cap.
	HalfOpenMaxCalls int `validate:"gte=0"`
	// OnStateChange is called after every transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
	// Logger receives transition logs. Nil discards them.
	Logger *logger.Logger
}

// DefaultCircuitBreakerConfig returns the baseline configuration.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
	}
}

// Validate checks the configuration without applying defaults.
func (c CircuitBreakerConfig) Validate() error {
	return validation.Validate(c)
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return c
}

// CircuitBreakerStats is a point-in-time snapshot of a breaker.
type CircuitBreakerStats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime time.Time `json:"last_success_time,omitempty"`
	NextRetryTime   time.Time `json:"next_retry_time,omitempty"`
}

// CircuitBreaker fails fast against a dependency that keeps failing.
//
// States:
//   - Closed: requests pass through; consecutive failures are counted
//   - Open: requests are rejected with a *CircuitOpenError until RecoveryTimeout
//   - Half-Open: requests probe the dependency; one failure reopens,
//     SuccessThreshold successes close
//
// The open to half-open transition is evaluated when a call arrives; there
// is no background timer.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	log    *logger.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	halfOpenCalls   int
	lastFailureTime time.Time
	lastSuccessTime time.Time
	nextRetryTime   time.Time
}

type transition struct {
	from, to State
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &CircuitBreaker{
		config: config,
		log:    log.WithComponent("circuit_breaker").WithFields(logger.Fields(logger.FieldBreaker, config.Name)),
		now:    time.Now,
		state:  StateClosed,
	}, nil
}

// Execute runs fn through the circuit breaker. It returns a *CircuitOpenError
// without invoking fn when the circuit is open, otherwise fn's own error.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := CallWithBreaker(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CallWithBreaker runs a function that returns a value through cb.
func CallWithBreaker[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allow(); err != nil {
		return zero, err
	}

	data, err := safeCall(ctx, fn)
	cb.record(err)
	if err != nil {
		return zero, err
	}
	return data, nil
}

// allow admits a call or returns a *CircuitOpenError.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	t, changed := cb.advance()

	var err error
	switch cb.state {
	case StateOpen:
		err = &CircuitOpenError{Breaker: cb.config.Name, RetryAt: cb.nextRetryTime}
	case StateHalfOpen:
		if cb.config.HalfOpenMaxCalls > 0 && cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			err = &CircuitOpenError{Breaker: cb.config.Name, RetryAt: cb.nextRetryTime}
		} else {
			cb.halfOpenCalls++
		}
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(t)
	}
	return err
}

// record applies the outcome of an admitted call.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}

	var t transition
	var changed bool
	switch {
	case errors.Is(err, context.Canceled):
		// The caller gave up; says nothing about the dependency.
	case err != nil:
		t, changed = cb.onFailure()
	default:
		t, changed = cb.onSuccess()
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(t)
	}
}

func (cb *CircuitBreaker) onSuccess() (transition, bool) {
	cb.lastSuccessTime = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures = 0
		if cb.successes < cb.config.SuccessThreshold {
			cb.successes++
		}
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			return cb.toState(StateClosed), true
		}
	}
	return transition{}, false
}

func (cb *CircuitBreaker) onFailure() (transition, bool) {
	cb.lastFailureTime = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			return cb.toState(StateOpen), true
		}
	case StateHalfOpen:
		cb.failures++
		return cb.toState(StateOpen), true
	}
	// A late result arriving after the circuit opened leaves it open.
	return transition{}, false
}

// advance performs the lazy open to half-open transition. Caller holds mu.
func (cb *CircuitBreaker) advance() (transition, bool) {
	if cb.state == StateOpen && !cb.now().Before(cb.nextRetryTime) {
		return cb.toState(StateHalfOpen), true
	}
	return transition{}, false
}

// toState switches state and resets counters. Caller holds mu.
func (cb *CircuitBreaker) toState(to State) transition {
	from := cb.state
	cb.state = to
	cb.halfOpenCalls = 0

	switch to {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
		cb.nextRetryTime = time.Time{}
	case StateOpen:
		cb.successes = 0
		cb.nextRetryTime = cb.now().Add(cb.config.RecoveryTimeout)
	case StateHalfOpen:
		cb.successes = 0
	}
	return transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(t transition) {
	fields := logger.Fields("from", t.from.String(), logger.FieldState, t.to.String())
	if t.to == StateOpen {
		cb.log.Warn("circuit opened", fields)
	} else {
		cb.log.Info("circuit state changed", fields)
	}
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, t.from, t.to)
	}
}

// State returns the current state, applying any due open to half-open
// transition.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	t, changed := cb.advance()
	s := cb.state
	cb.mu.Unlock()

	if changed {
		cb.notify(t)
	}
	return s
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.toState(StateClosed)
	cb.lastFailureTime = time.Time{}
	cb.lastSuccessTime = time.Time{}
	cb.mu.Unlock()

	cb.log.Info("circuit reset", logger.Fields("from", from.String()))
	if from != StateClosed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, StateClosed)
	}
}

// Stats returns a snapshot of the breaker. It does not advance state.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		Name:            cb.config.Name,
		State:           cb.state,
		FailureCount:    cb.failures,
		SuccessCount:    cb.successes,
		LastFailureTime: cb.lastFailureTime,
		LastSuccessTime: cb.lastSuccessTime,
		NextRetryTime:   cb.nextRetryTime,
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Config returns the effective configuration, defaults applied.
func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	return cb.config
}
