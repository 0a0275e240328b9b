package repo

import (
	"io"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by every stream of one source.
type RateLimiter struct {
	mu     sync.Mutex
	rate   int64   // bytes per second
	tokens float64 // current available tokens
	last   time.Time
}

// NewRateLimiter returns nil for a non-positive rate, which disables limiting.
func NewRateLimiter(bytesPerSecond int64) *RateLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &RateLimiter{rate: bytesPerSecond, tokens: float64(bytesPerSecond), last: time.Now()}
}

// SetRate changes the limit in place. Tokens above the new rate are dropped.
func (l *RateLimiter) SetRate(bytesPerSecond int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = bytesPerSecond
	if l.tokens > float64(bytesPerSecond) {
		l.tokens = float64(bytesPerSecond)
	}
	l.last = time.Now()
}

// Wrap returns r unchanged when l is nil.
func (l *RateLimiter) Wrap(r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &limitedReader{under: r, lim: l}
}

// take blocks until at least one token is available and reserves up to want bytes.
func (l *RateLimiter) take(want int) int {
	for {
		l.mu.Lock()
		if l.rate <= 0 {
			l.mu.Unlock()
			return want
		}
		now := time.Now()
		if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
			l.tokens += elapsed * float64(l.rate)
			if l.tokens > float64(l.rate) {
				l.tokens = float64(l.rate)
			}
			l.last = now
		}
		allowed := int(l.tokens)
		if allowed > 0 {
			if want > allowed {
				want = allowed
			}
			l.mu.Unlock()
			return want
		}
		wait := time.Duration(float64(time.Second) / float64(l.rate))
		l.mu.Unlock()
		time.Sleep(wait)
	}
}

func (l *RateLimiter) spend(n int) {
	l.mu.Lock()
	l.tokens -= float64(n)
	l.mu.Unlock()
}

type limitedReader struct {
	under io.Reader
	lim   *RateLimiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if lr.lim == nil || len(p) == 0 {
		return lr.under.Read(p)
	}
	p = p[:lr.lim.take(len(p))]
	n, err := lr.under.Read(p)
	if n > 0 {
		lr.lim.spend(n)
	}
	return n, err
}
