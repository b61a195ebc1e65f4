package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-evaluator/internal/logging"
	"github.com/sony/gobreaker"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the service has recovered
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when too many requests are made in half-open state
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MinRequests is the number of requests in an interval before the failure ratio is considered
	MinRequests  uint32
	FailureRatio float64
	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration
	// Interval clears the closed state counts periodically
	Interval         time.Duration
	HalfOpenMaxCalls uint32
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MinRequests:      3,
		FailureRatio:     0.6,
		Timeout:          30 * time.Second,
		Interval:         time.Minute,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker guards calls to one external service
type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker

	mu              sync.RWMutex
	lastStateChange time.Time
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:            config.Name,
		lastStateChange: time.Now(),
	}

	minRequests := config.MinRequests
	ratio := config.FailureRatio
	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMaxCalls,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up is not a failure of the service
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cb.mu.Lock()
			cb.lastStateChange = time.Now()
			cb.mu.Unlock()
			logging.WithFields(map[string]interface{}{
				"circuitBreaker": name,
				"from":           from.String(),
				"to":             to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return cb
}

// Execute executes a function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%s: %w", cb.name, ErrTooManyRequests)
	case err != nil:
		cb.mu.Lock()
		cb.lastFailureTime = time.Now()
		cb.mu.Unlock()
	}
	return err
}

// Name returns the guarded service name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	switch cb.breaker.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name                 string    `json:"name"`
	State                State     `json:"state"`
	Requests             uint32    `json:"requests"`
	TotalFailures        uint32    `json:"totalFailures"`
	ConsecutiveFailures  uint32    `json:"consecutiveFailures"`
	ConsecutiveSuccesses uint32    `json:"consecutiveSuccesses"`
	LastFailureTime      time.Time `json:"lastFailureTime"`
	LastStateChange      time.Time `json:"lastStateChange"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() *Stats {
	// state is read first: reading it may fire OnStateChange, which takes cb.mu
	state := cb.GetState()
	counts := cb.breaker.Counts()

	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return &Stats{
		Name:                 cb.name,
		State:                state,
		Requests:             counts.Requests,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		LastFailureTime:      cb.lastFailureTime,
		LastStateChange:      cb.lastStateChange,
	}
}

// CircuitBreakerManager manages one circuit breaker per external service
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	defaults Config
	mu       sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager. defaults
// is used for breakers created without an explicit config; nil means DefaultConfig.
func NewCircuitBreakerManager(defaults *Config) *CircuitBreakerManager {
	if defaults == nil {
		defaults = DefaultConfig("")
	}
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
		defaults: *defaults,
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (cbm *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if cb, exists := cbm.breakers[name]; exists {
		return cb
	}

	config := cbm.defaults
	config.Name = name
	cb := NewCircuitBreaker(&config)
	cbm.breakers[name] = cb

	return cb
}

// GetAllStats returns statistics for all circuit breakers
func (cbm *CircuitBreakerManager) GetAllStats() map[string]*Stats {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	result := make(map[string]*Stats)
	for name, cb := range cbm.breakers {
		result[name] = cb.GetStats()
	}

	return result
}
