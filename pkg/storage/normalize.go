package storage

import (
	"net"
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// NormalizeStoreURL reduces a store URL to scheme://host so the same store is
// stored under one identity regardless of path, case or default ports.
func NormalizeStoreURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s, "/")
	}
	host := strings.ToLower(u.Host)
	if u.Scheme == "http" && u.Port() == "80" {
		host = strings.TrimSuffix(host, ":80")
	}
	if u.Scheme == "https" && u.Port() == "443" {
		host = strings.TrimSuffix(host, ":443")
	}
	return u.Scheme + "://" + host
}

// StoreDomain returns the registrable domain of a store URL, e.g.
// "https://shop.example.co.uk" -> "example.co.uk". Hosts without a public
// suffix (IPs, localhost) report false.
func StoreDomain(storeURL string) (string, bool) {
	u, err := url.Parse(NormalizeStoreURL(storeURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := u.Hostname()
	if !strings.Contains(host, ".") || net.ParseIP(host) != nil {
		return "", false
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return "", false
	}
	return domain, true
}
