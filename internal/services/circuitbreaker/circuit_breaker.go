// Package circuitbreaker tracks upstream provider health in Redis so
// every hub instance sees the same open/closed decision. A provider that
// keeps failing is skipped for a cooldown instead of burning user budget
// on doomed dispatches.
package circuitbreaker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Cooldown:         30 * time.Second,
	}
}

const (
	keyPrefix       = "aihub:breaker:"
	stateKey        = "state"
	failureCountKey = "failures"
	successCountKey = "successes"
	lastFailureKey  = "last_failure"
	opTimeout       = 1 * time.Second
)

// Success and failure recording run as Lua so count-and-transition is one
// atomic step across instances.
const (
	recordSuccessScript = `
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		redis.call('SET', KEYS[2], 0)

		if state == 2 then
			local count = redis.call('INCR', KEYS[3])
			if count >= tonumber(ARGV[1]) then
				redis.call('SET', KEYS[1], 0)
				redis.call('SET', KEYS[3], 0)
				return 1
			end
		end
		return 0
	`

	recordFailureScript = `
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		local failures = redis.call('INCR', KEYS[2])
		redis.call('SET', KEYS[3], ARGV[2])

		if (state == 0 and failures >= tonumber(ARGV[1])) or state == 2 then
			redis.call('SET', KEYS[1], 1)
			redis.call('SET', KEYS[4], '0')
			return 1
		end
		return 0
	`
)

type CircuitBreaker struct {
	client   *redis.Client
	provider string
	config   Config
	prefix   string
}

func NewForProvider(client *redis.Client, provider string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		client:   client,
		provider: provider,
		config:   config,
		prefix:   keyPrefix + provider + ":",
	}
}

// CanExecute reports whether a dispatch may go out. Redis trouble fails
// open: a broken breaker must not take down working providers.
func (cb *CircuitBreaker) CanExecute() bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	state, err := cb.state(ctx)
	if err != nil {
		fiberlog.Debugf("breaker %s unavailable, allowing dispatch: %v", cb.provider, err)
		return true
	}

	switch state {
	case Closed, HalfOpen:
		return true
	case Open:
		lastFailure, err := cb.client.Get(ctx, cb.prefix+lastFailureKey).Int64()
		if err != nil {
			return true
		}
		if time.Since(time.Unix(lastFailure, 0)) > cb.config.Cooldown {
			cb.setState(ctx, HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	keys := []string{cb.prefix + stateKey, cb.prefix + failureCountKey, cb.prefix + successCountKey}
	result, err := cb.client.Eval(ctx, recordSuccessScript, keys, cb.config.SuccessThreshold).Int()
	if err != nil {
		fiberlog.Debugf("breaker %s success record failed: %v", cb.provider, err)
		return
	}
	if result == 1 {
		fiberlog.Infof("breaker %s closed after recovery", cb.provider)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	keys := []string{
		cb.prefix + stateKey,
		cb.prefix + failureCountKey,
		cb.prefix + lastFailureKey,
		cb.prefix + successCountKey,
	}
	result, err := cb.client.Eval(ctx, recordFailureScript, keys,
		cb.config.FailureThreshold, time.Now().Unix()).Int()
	if err != nil {
		fiberlog.Debugf("breaker %s failure record failed: %v", cb.provider, err)
		return
	}
	if result == 1 {
		fiberlog.Warnf("breaker %s opened after repeated failures", cb.provider)
	}
}

func (cb *CircuitBreaker) state(ctx context.Context) (State, error) {
	raw, err := cb.client.Get(ctx, cb.prefix+stateKey).Result()
	if err == redis.Nil {
		return Closed, nil
	}
	if err != nil {
		return Closed, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Closed, fmt.Errorf("invalid breaker state %q: %w", raw, err)
	}
	return State(n), nil
}

func (cb *CircuitBreaker) setState(ctx context.Context, s State) {
	pipe := cb.client.Pipeline()
	pipe.Set(ctx, cb.prefix+stateKey, int(s), 0)
	if s != HalfOpen {
		pipe.Set(ctx, cb.prefix+successCountKey, 0, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		fiberlog.Debugf("breaker %s state write failed: %v", cb.provider, err)
	}
}
