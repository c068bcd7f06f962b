// Package realip resolves the client address of a request, honoring
// forwarding headers only when the direct peer is a trusted proxy.
package realip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is a set of networks whose forwarding headers are believed.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDRs or bare IPs. Unparseable entries are skipped.
func NewTrustedProxies(cidrs []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(raw); err == nil {
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			tp.prefixes = append(tp.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return tp
}

// IsTrusted reports whether addr belongs to a trusted network.
func (tp *TrustedProxies) IsTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientAddr returns the originating client address. The leftmost valid
// X-Forwarded-For entry wins, then X-Real-IP, then the peer address.
func (tp *TrustedProxies) ClientAddr(r *http.Request) (netip.Addr, bool) {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok || tp == nil || !tp.IsTrusted(peer) {
		return peer, ok
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
				return addr.Unmap(), true
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap(), true
		}
	}
	return peer, true
}

// GetClientIPString is ClientAddr formatted for logs and rate-limit keys.
func (tp *TrustedProxies) GetClientIPString(r *http.Request) string {
	addr, ok := tp.ClientAddr(r)
	if !ok {
		return "unknown"
	}
	return addr.String()
}

func peerAddr(remote string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
