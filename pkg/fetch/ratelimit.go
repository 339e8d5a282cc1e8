package fetch

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter enforces a minimum delay between requests to the same host.
// The inter-batch sleep bounds sustained load across the fleet; this bounds
// burstiness against a single IR site when navigation fans out.
type RateLimiter struct {
	hostLastRequest   map[string]time.Time
	hostLastRequestMu sync.Mutex
	minDelay          time.Duration
	log               *logrus.Logger
}

// NewRateLimiter creates a RateLimiter with the given per-host minimum delay.
func NewRateLimiter(minDelay time.Duration, log *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		minDelay:        minDelay,
		log:             log,
	}
}

// ApplyDelay sleeps if the time since the last request to the host is less
// than the configured minimum. Includes jitter (+/- 10%) to desynchronize
// concurrent company crawls that happen to share a host.
func (rl *RateLimiter) ApplyDelay(host string) {
	if rl.minDelay <= 0 {
		return
	}

	rl.hostLastRequestMu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.hostLastRequestMu.Unlock() // Unlock before potentially sleeping

	if !exists {
		return
	}

	elapsed := time.Since(lastReqTime)
	if elapsed >= rl.minDelay {
		return
	}

	sleepDuration := rl.minDelay - elapsed
	var jitter time.Duration
	if jitterRange := int64(sleepDuration) / 5; jitterRange > 0 {
		jitter = time.Duration(rand.Int63n(jitterRange)) - sleepDuration/10
	}
	finalSleep := sleepDuration + jitter
	if finalSleep <= 0 {
		return
	}

	rl.log.WithFields(logrus.Fields{
		"host": host, "sleep": finalSleep, "required_delay": rl.minDelay,
	}).Debug("Rate limit applying sleep")
	time.Sleep(finalSleep)
}

// UpdateLastRequestTime records the current time as the last request attempt
// time for the host. Call after each HTTP request attempt to the host.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.hostLastRequestMu.Unlock()
}
