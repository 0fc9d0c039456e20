package ipfilter

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies lists the reverse proxies allowed to report the client
// address through X-Forwarded-For or X-Real-IP. Requests from any other
// peer are judged by RemoteAddr alone. A nil *TrustedProxies trusts no one.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses proxy IPs/CIDRs
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		prefix, err := ParsePrefix(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		p.prefixes = append(p.prefixes, prefix)
	}
	return p, nil
}

func (p *TrustedProxies) trusts(addr netip.Addr) bool {
	if p == nil || !addr.IsValid() {
		return false
	}
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientAddr resolves the client address of r. Forwarding headers are
// used only when the direct peer is a trusted proxy; X-Forwarded-For is
// walked from the right, skipping trusted hops. The zero Addr is
// returned when nothing parses.
func (p *TrustedProxies) ClientAddr(r *http.Request) netip.Addr {
	peer := remoteAddr(r)
	if !p.trusts(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = addr.Unmap()
			if !p.trusts(client) {
				return client
			}
		}
		return client
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap()
		}
	}
	return peer
}

// ClientIP is ClientAddr as a string, empty when unknown
func (p *TrustedProxies) ClientIP(r *http.Request) string {
	if addr := p.ClientAddr(r); addr.IsValid() {
		return addr.String()
	}
	return ""
}

func remoteAddr(r *http.Request) netip.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
