package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    ErrorClass
	}{
		{"agent not found", "spawn failed: agent not found", ClassPermanent},
		{"agent_not_found code", "error=agent_not_found", ClassPermanent},
		{"no such agent", "No Such Agent 'builder'", ClassPermanent},
		{"deregistered", "agent deregistered mid-flight", ClassPermanent},
		{"permission denied", "permission denied for workspace", ClassPermanent},
		{"forbidden", "403 Forbidden", ClassPermanent},
		{"unauthorized", "Unauthorized token", ClassPermanent},
		{"rate limit spaced", "rate limit exceeded", ClassRateLimited},
		{"rate_limit underscore", "rate_limit_error", ClassRateLimited},
		{"rate-limit dashed", "rate-limit hit", ClassRateLimited},
		{"too many requests", "Too Many Requests", ClassRateLimited},
		{"429", "upstream returned 429", ClassRateLimited},
		{"throttled", "request throttled", ClassRateLimited},
		{"quota", "quota exceeded for org", ClassRateLimited},
		{"timeout is transient", "connection timeout", ClassTransient},
		{"empty is transient", "", ClassTransient},
		{"unknown is transient", "something exploded", ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.message))
		})
	}
}

func TestErrorClassErr(t *testing.T) {
	assert.True(t, errors.Is(ClassPermanent.Err(), ErrSpawnPermanent))
	assert.True(t, errors.Is(ClassRateLimited.Err(), ErrSpawnRateLimited))
	assert.True(t, errors.Is(ClassTransient.Err(), ErrSpawnTransient))
}

func TestRetryBackoffSchedule(t *testing.T) {
	// jitter=0.5 collapses to the raw schedule.
	mid := func() float64 { return 0.5 }

	assert.Equal(t, 60*time.Second, RetryBackoff(0, mid))
	assert.Equal(t, 180*time.Second, RetryBackoff(1, mid))
	assert.Equal(t, 540*time.Second, RetryBackoff(2, mid))
	assert.Equal(t, 15*time.Minute, RetryBackoff(3, mid))
	assert.Equal(t, 15*time.Minute, RetryBackoff(10, mid))
}

func TestRetryBackoffJitterBounds(t *testing.T) {
	lo := func() float64 { return 0.0 }
	hi := func() float64 { return 0.999999 }

	for n := 0; n < 6; n++ {
		base := RetryBackoff(n, func() float64 { return 0.5 })
		low := RetryBackoff(n, lo)
		high := RetryBackoff(n, hi)

		assert.Equal(t, time.Duration(float64(base)*0.75), low, "retry %d lower bound", n)
		assert.Less(t, high, time.Duration(float64(base)*1.25)+time.Millisecond, "retry %d upper bound", n)
		assert.Greater(t, high, base, "retry %d jitter above midpoint", n)
	}
}

func TestRetryBackoffDefaultJitterInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := RetryBackoff(1, nil)
		assert.GreaterOrEqual(t, v, time.Duration(float64(180*time.Second)*0.75))
		assert.Less(t, v, time.Duration(float64(180*time.Second)*1.25))
	}
}
