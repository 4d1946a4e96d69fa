package executor

import (
	"errors"
	"regexp"
)

// ErrorClass buckets a spawn failure for retry policy.
type ErrorClass string

const (
	// ClassPermanent failures deadletter immediately: retrying cannot
	// help (agent gone, permission denied).
	ClassPermanent ErrorClass = "permanent"

	// ClassRateLimited failures retry with backoff like transient ones
	// but are reported distinctly.
	ClassRateLimited ErrorClass = "rate_limited"

	// ClassTransient covers everything else: connection refused, gateway
	// timeouts, unknown errors.
	ClassTransient ErrorClass = "transient"
)

// Dispatch-classification error kinds, for callers that prefer errors.Is
// over comparing classes.
var (
	ErrSpawnPermanent   = errors.New("spawn failed permanently")
	ErrSpawnRateLimited = errors.New("spawn rate limited")
	ErrSpawnTransient   = errors.New("spawn failed transiently")
)

// Err maps a class to its sentinel error.
func (c ErrorClass) Err() error {
	switch c {
	case ClassPermanent:
		return ErrSpawnPermanent
	case ClassRateLimited:
		return ErrSpawnRateLimited
	default:
		return ErrSpawnTransient
	}
}

var (
	permanentRe = regexp.MustCompile(`(?i)agent not found|agent_not_found|no such agent|agent deregistered|permission denied|forbidden|unauthorized`)
	rateLimitRe = regexp.MustCompile(`(?i)rate[ _-]?limit|too many requests|429|throttled|quota exceeded`)
)

// Classify buckets a spawn error string. Unknown errors are transient: the
// safe default is to retry with backoff.
func Classify(errMsg string) ErrorClass {
	switch {
	case permanentRe.MatchString(errMsg):
		return ClassPermanent
	case rateLimitRe.MatchString(errMsg):
		return ClassRateLimited
	default:
		return ClassTransient
	}
}
