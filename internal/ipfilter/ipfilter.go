// Package ipfilter guards the admin surface with an IP allowlist and
// renders that allowlist for nginx and Traefik.
package ipfilter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"github.com/foxzi/phonebook/internal/models"
)

// rule is one allowed network and the label it came from
type rule struct {
	prefix netip.Prefix
	label  string
}

// Filter matches client addresses against the allowlist. An empty
// allowlist allows every address. Reload swaps the rules at runtime.
type Filter struct {
	mu      sync.RWMutex
	rules   []rule
	proxies *TrustedProxies
	logger  *slog.Logger
}

// New creates a filter from configured IPs/CIDRs
func New(allowedIPs []string, logger *slog.Logger) *Filter {
	f := &Filter{logger: logger}
	entries := make([]models.AllowedIP, 0, len(allowedIPs))
	for _, ip := range allowedIPs {
		entries = append(entries, models.AllowedIP{IP: ip, Active: true})
	}
	f.rules = f.compile(entries)
	return f
}

func (f *Filter) compile(entries []models.AllowedIP) []rule {
	var rules []rule
	for _, e := range entries {
		if !e.Active {
			continue
		}
		raw := strings.TrimSpace(e.IP)
		if raw == "" {
			continue
		}

		prefix, err := ParsePrefix(raw)
		if err != nil {
			f.logger.Warn("skipping invalid allowlist entry", "entry", raw, "error", err)
			continue
		}
		label := raw
		if e.Description != nil && *e.Description != "" {
			label = *e.Description
		}
		rules = append(rules, rule{prefix: prefix, label: label})
	}
	return rules
}

// ParsePrefix parses a CIDR or a single address, which becomes a
// host prefix (/32 or /128)
func ParsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// SetTrustedProxies selects the peers whose forwarding headers are
// honoured when resolving the client address. nil trusts none.
func (f *Filter) SetTrustedProxies(p *TrustedProxies) {
	f.mu.Lock()
	f.proxies = p
	f.mu.Unlock()
}

// Reload replaces the allowlist with the active entries
func (f *Filter) Reload(entries []models.AllowedIP) {
	rules := f.compile(entries)

	f.mu.Lock()
	f.rules = rules
	f.mu.Unlock()

	f.logger.Info("IP allowlist reloaded", "allowed_networks", len(rules))
}

// Enabled returns true if IP filtering is active
func (f *Filter) Enabled() bool {
	return f.Count() > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rules)
}

// Match returns the label of the first rule containing addr. An empty
// filter matches everything with an empty label.
func (f *Filter) Match(addr netip.Addr) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.rules) == 0 {
		return "", true
	}
	if !addr.IsValid() {
		return "", false
	}
	addr = addr.Unmap()
	for _, r := range f.rules {
		if r.prefix.Contains(addr) {
			return r.label, true
		}
	}
	return "", false
}

// IsAllowed reports whether addr passes the filter
func (f *Filter) IsAllowed(addr netip.Addr) bool {
	_, ok := f.Match(addr)
	return ok
}

// IsAllowedString parses and checks an address; unparsable input is
// denied while filtering is enabled
func (f *Filter) IsAllowedString(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return !f.Enabled()
	}
	return f.IsAllowed(addr)
}

// HTTPMiddleware rejects requests from addresses outside the allowlist
func (f *Filter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		f.mu.RLock()
		proxies := f.proxies
		f.mu.RUnlock()

		addr := proxies.ClientAddr(r)
		label, ok := f.Match(addr)
		if !ok {
			f.logger.Warn("access denied by IP filter",
				"ip", addr.String(),
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			forbidden(w)
			return
		}

		f.logger.Debug("allowlist match", "ip", addr.String(), "entry", label)
		next.ServeHTTP(w, r)
	})
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{"error": "Forbidden"})
}
