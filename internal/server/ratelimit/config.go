package ratelimit

import (
	"net/http"
	"time"
)

// Tier is a named rate limit bucket set. A nil Limiter disables the tier.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Config assigns requests to tiers. All tiers are keyed by client IP.
type Config struct {
	Read  Tier
	Write Tier
}

// NewConfig builds the read and write tiers from per-minute rates. A rate of
// zero or less disables the tier.
func NewConfig(readPerMin, writePerMin int) *Config {
	return &Config{
		Read:  newTier("read", readPerMin),
		Write: newTier("write", writePerMin),
	}
}

func newTier(name string, perMin int) Tier {
	t := Tier{Name: name}
	if perMin > 0 {
		// Allow a sixth of the minute budget as a burst.
		t.Limiter = NewLimiter(perMin, time.Minute, max(perMin/6, 1))
	}
	return t
}

// Match returns the tier applying to a request, or nil when the request is
// not limited.
func (c *Config) Match(method, path string) *Tier {
	if c == nil || path == "/health" {
		return nil
	}
	var t *Tier
	switch method {
	case http.MethodGet, http.MethodHead:
		t = &c.Read
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		t = &c.Write
	default:
		return nil
	}
	if t.Limiter == nil {
		return nil
	}
	return t
}

// Close stops the limiters' cleanup goroutines.
func (c *Config) Close() {
	if c == nil {
		return
	}
	for _, t := range []*Tier{&c.Read, &c.Write} {
		if t.Limiter != nil {
			t.Limiter.Close()
		}
	}
}
