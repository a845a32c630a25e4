package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/seancfoley/ipaddress-go/ipaddr"
)

// TrustedProxies is the set of networks whose forwarding headers are believed.
// A nil *TrustedProxies trusts nobody.
type TrustedProxies struct {
	trieV4 *ipaddr.IPv4AddressTrie
	trieV6 *ipaddr.IPv6AddressTrie
	count  int
}

// NewTrustedProxies parses addresses and CIDR blocks. Invalid entries are a
// configuration error.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{
		trieV4: &ipaddr.IPv4AddressTrie{},
		trieV6: &ipaddr.IPv6AddressTrie{},
	}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("empty trusted proxy entry")
		}
		addr, err := ipaddr.NewIPAddressString(entry).ToAddress()
		if err != nil || addr == nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %v", entry, err)
		}
		if addr.IsPrefixed() {
			addr = addr.ToPrefixBlock()
		}

		switch {
		case addr.IsIPv4():
			tp.trieV4.Add(addr.ToIPv4())
		case addr.IsIPv6():
			tp.trieV6.Add(addr.ToIPv6())
		default:
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		tp.count++
	}
	return tp, nil
}

// Len returns the number of configured entries.
func (tp *TrustedProxies) Len() int {
	if tp == nil {
		return 0
	}
	return tp.count
}

// Contains reports whether ip falls inside a trusted network.
func (tp *TrustedProxies) Contains(ip string) bool {
	if tp == nil || tp.count == 0 || ip == "" {
		return false
	}
	addr, err := ipaddr.NewIPAddressString(ip).ToAddress()
	if err != nil || addr == nil {
		return false
	}
	if addr.IsIPv4() {
		return tp.trieV4.ElementContains(addr.ToIPv4())
	}
	if addr.IsIPv6() {
		return tp.trieV6.ElementContains(addr.ToIPv6())
	}
	return false
}

// ClientIP extracts the client address of r. Forwarding headers are only
// honored when the direct peer is a trusted proxy. Returns Unknown when no
// address is available.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	peer := remoteHost(r.RemoteAddr)

	if trusted.Contains(peer) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if peer == "" {
		return Unknown
	}
	return peer
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
