// Package geo resolves IP addresses to coarse geography through an
// ordered chain of lookup providers. Providers are unreliable by
// assumption: every lookup runs under a timeout and behind a circuit
// breaker, and total failure yields an empty Location, never an error.
package geo

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Location is the resolved geography for an IP. Empty fields mean the
// provider had no answer for that dimension.
type Location struct {
	Country     string
	CountryCode string
	Region      string
	City        string
	Timezone    string
}

// IsEmpty reports whether the lookup produced nothing usable. Country is
// the minimum signal a provider must return for a result to count.
func (l Location) IsEmpty() bool {
	return l.Country == "" && l.CountryCode == ""
}

// Provider is a single geolocation lookup backend.
type Provider interface {
	// Lookup resolves the IP. A nil error with an empty Location is
	// treated as a miss, not a success.
	Lookup(ctx context.Context, ip string) (Location, error)
	Name() string
	// Available reports whether the provider can serve lookups at all,
	// e.g. whether a local database file was found at startup.
	Available() bool
}

// Resolver tries each provider in order until one returns a country.
type Resolver struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker[Location]
	timeout   time.Duration
	logger    *slog.Logger
}

// NewResolver builds a resolver over the given providers, applied in
// order. perProviderTimeout bounds each individual lookup.
func NewResolver(logger *slog.Logger, perProviderTimeout time.Duration, providers ...Provider) *Resolver {
	breakers := make(map[string]*gobreaker.CircuitBreaker[Location], len(providers))
	for _, p := range providers {
		breakers[p.Name()] = gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
			Name:        "geo-" + p.Name(),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return &Resolver{
		providers: providers,
		breakers:  breakers,
		timeout:   perProviderTimeout,
		logger:    logger,
	}
}

// Resolve maps an IP address to a Location. It never returns an error:
// unparseable, private and unresolvable addresses all come back empty.
// Private and loopback addresses short-circuit before any provider call.
func (r *Resolver) Resolve(ctx context.Context, rawIP string) Location {
	ip := normalizeIP(rawIP)
	if ip == "" {
		return Location{}
	}

	for _, provider := range r.providers {
		if !provider.Available() {
			continue
		}

		breaker := r.breakers[provider.Name()]
		location, err := breaker.Execute(func() (Location, error) {
			lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			return provider.Lookup(lookupCtx, ip)
		})
		if err != nil {
			r.logger.Debug("geo provider lookup failed",
				slog.String("provider", provider.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if !location.IsEmpty() {
			return location
		}
	}

	return Location{}
}

// normalizeIP strips an optional port and rejects addresses that no
// public geolocation database can answer for.
func normalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}

	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return ""
	}
	return ip.String()
}
