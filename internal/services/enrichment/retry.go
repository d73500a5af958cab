package enrichment

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// retryPolicy defines backoff behavior for model rate limit handling.
// Defaults are tuned for quota windows that reset roughly once a minute.
type retryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		MaxRetries:        5,
		InitialBackoff:    45 * time.Second,
		MaxBackoff:        90 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// isResourceExhausted checks whether an error is a provider rate limit
// or quota error. Matches 429 status codes and RESOURCE_EXHAUSTED.
func isResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the API-suggested retry delay from an error
// message. Returns 0 if no delay is present.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// backoff computes the wait before the given retry attempt. An
// API-provided delay, when present, replaces the configured base.
func (p retryPolicy) backoff(attempt int, apiDelay time.Duration) time.Duration {
	base := p.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay + 5*time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= p.BackoffMultiplier
	}

	wait := time.Duration(float64(base) * multiplier)
	if wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}

	return wait
}
