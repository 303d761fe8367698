package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/code-payments/tokadapt-server/pkg/retry/backoff"
)

// Action is a function to be performed in a retriable manner.
type Action func() error

// Strategy decides whether an action that failed after attempts tries should
// be retried. Strategies may delay, so any that sleep should be passed last.
type Strategy func(attempts uint, err error) bool

// Retry executes action until it succeeds or one of the strategies declines
// another attempt. It returns the number of attempts made and the last error.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	for i := uint(1); ; i++ {
		err := action()
		if err == nil {
			return i, nil
		}

		for _, s := range strategies {
			if !s(i, err) {
				return i, err
			}
		}
	}
}

// Limit caps the total number of attempts, including the first.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableIf retries only errors matching the predicate, for error classes
// that cannot be compared by identity, such as driver errors carrying a code.
func RetriableIf(predicate func(err error) bool) Strategy {
	return func(_ uint, err error) bool {
		return predicate(err)
	}
}

// Backoff sleeps before the next attempt, for at most maxBackoff.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return BackoffWithJitter(strategy, maxBackoff, 0)
}

// BackoffWithJitter is like Backoff, but randomizes each capped delay by up to
// +/- jitter of its value. A capped delay of 100ms with a jitter of 0.1 sleeps
// between 90ms and 110ms.
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(attempts uint, _ error) bool {
		delay := time.Duration(math.Min(float64(maxBackoff), float64(strategy(attempts))))
		if jitter > 0 {
			delay = time.Duration(float64(delay) * (1 + (rand.Float64()*2-1)*jitter))
		}
		sleeperImpl.Sleep(delay)
		return true
	}
}

type sleeper interface {
	Sleep(time.Duration)
}

type realSleeper struct{}

func (r *realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

var sleeperImpl sleeper = &realSleeper{}
