package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Buckets idle this long are dropped once the map grows past maxBuckets
	bucketIdleTTL = 10 * time.Minute
	maxBuckets    = 1024
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	rps     rate.Limit
	burst   int
	buckets map[string]*clientBucket
	mu      sync.Mutex
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*clientBucket),
	}
}

// Allow reports whether clientIP may make a request now
func (l *clientLimiter) Allow(clientIP string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[clientIP]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			l.cleanup(now)
		}
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[clientIP] = bucket
	}
	bucket.lastSeen = now

	return bucket.limiter.AllowN(now, 1)
}

// cleanup drops idle buckets; l.mu must be held
func (l *clientLimiter) cleanup(now time.Time) {
	for ip, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > bucketIdleTTL {
			delete(l.buckets, ip)
		}
	}
}
