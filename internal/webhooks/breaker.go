package webhooks

import (
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// breakers keeps one circuit breaker per receiving host so a dead endpoint
// stops consuming delivery attempts of healthy ones.
type breakers struct {
	mu       sync.Mutex
	byHost   map[string]*gobreaker.CircuitBreaker
	failures uint32
	timeout  time.Duration
}

func newBreakers(failures uint32, timeout time.Duration) *breakers {
	return &breakers{byHost: map[string]*gobreaker.CircuitBreaker{}, failures: failures, timeout: timeout}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

func (b *breakers) get(rawURL string) *gobreaker.CircuitBreaker {
	host := hostOf(rawURL)
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.byHost[host]; ok {
		return cb
	}
	threshold := b.failures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     b.timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= threshold },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("webhook circuit breaker state changed")
		},
	})
	b.byHost[host] = cb
	return cb
}
