package registry

import (
	"net/url"
	"strings"
)

// Endpoint URLs are tenant-supplied and therefore attacker-influenced; without
// host validation the delivery executor becomes an internal-network probe.
var blockedHostPrefixes = []string{
	"localhost",
	"127.",
	"0.0.0.0",
	"::1",
	"10.",
	"172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.",
	"172.22.", "172.23.", "172.24.", "172.25.", "172.26.", "172.27.",
	"172.28.", "172.29.", "172.30.", "172.31.",
	"192.168.",
}

var blockedHostSuffixes = []string{".local", ".internal"}

// ValidateURL rejects non-http(s) schemes and hosts that resolve to
// loopback, private, or link-local space.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Message: "must be a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "must use http or https"}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &ValidationError{Field: "url", Message: "must include a host"}
	}

	for _, prefix := range blockedHostPrefixes {
		if host == prefix || strings.HasPrefix(host, prefix) {
			return &ValidationError{Field: "url", Message: "internal and private addresses are not allowed"}
		}
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return &ValidationError{Field: "url", Message: "internal and private addresses are not allowed"}
		}
	}

	return nil
}
