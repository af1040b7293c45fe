package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const unknownAddr = "unknown"

// Identifier derives rate limit keys from requests.
// With trusted proxies configured, forwarding headers are only honoured when the peer is one of them.
type Identifier struct {
	trusted []*net.IPNet
}

func NewIdentifier(trustedProxies []string) (*Identifier, error) {
	id := &Identifier{}
	for _, cidr := range trustedProxies {
		if !strings.Contains(cidr, "/") {
			if ip := net.ParseIP(cidr); ip != nil && ip.To4() != nil {
				cidr += "/32"
			} else {
				cidr += "/128"
			}
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		id.trusted = append(id.trusted, network)
	}
	return id, nil
}

var defaultIdentifier = &Identifier{}

// ClientIdentity is `<ip>|<ua hash>` using the first forwarded-for entry, the real-ip header,
// or the peer address, in that order. It never fails: without an address the key is `unknown|<ua hash>`.
func ClientIdentity(r *http.Request) string {
	return defaultIdentifier.ClientIdentity(r)
}

func (id *Identifier) ClientIdentity(r *http.Request) string {
	ua := uaHash(r.UserAgent())
	ip := id.clientIP(r)
	if ip == "" {
		ip = unknownAddr
	}
	return ip + "|" + ua
}

func (id *Identifier) clientIP(r *http.Request) string {
	peer := peerHost(r.RemoteAddr)

	if id.trustsHeaders(peer) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	return peer
}

func (id *Identifier) trustsHeaders(peer string) bool {
	if len(id.trusted) == 0 {
		return true
	}
	ip := net.ParseIP(peer)
	if ip == nil {
		return false
	}
	for _, network := range id.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func peerHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func uaHash(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])[:16]
}
