package agentcore

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpproxy"
)

// ResolveProxy implements spec.md §4.2: combine the system proxy selector's
// http.nonProxyHosts wildcard rules with the environment http_proxy/no_proxy
// combination to decide what proxy address (if any) to use when dialing
// host:port.
//
// systemNonProxyHosts mirrors the Java system property http.nonProxyHosts:
// a "|"-separated list where entries with exactly one leading or trailing
// "*" are wildcards (anchored at the opposite end); a host matching any
// entry bypasses the system proxy selector's result entirely.
func ResolveProxy(host string, port int, systemProxyURL string, systemNonProxyHosts string, logger Logger) (*net.TCPAddr, error) {
	log := logger
	if log == nil {
		log = NewLogger("proxy", LogLevelInfo)
	}

	if systemProxyURL != "" {
		if matchesNonProxyHosts(host, systemNonProxyHosts, log) {
			log.DLogf("host %s matches http.nonProxyHosts, bypassing system proxy", host)
		} else {
			addr, err := resolveProxyAddr(systemProxyURL)
			if err != nil {
				log.DLogf("ignoring unparsable system proxy %q: %v", systemProxyURL, err)
			} else {
				return addr, nil
			}
		}
	}

	cfg := httpproxy.FromEnvironment()
	target := &url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(port))}
	proxyURL, err := cfg.ProxyFunc()(target)
	if err != nil {
		return nil, Unreachablef(err, "resolving proxy for %s", target)
	}
	if proxyURL == nil {
		return nil, nil
	}
	return resolveProxyAddr(proxyURL.String())
}

func resolveProxyAddr(raw string) (*net.TCPAddr, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, Unreachablef(err, "parsing proxy address %q", raw)
	}
	host := u.Hostname()
	portStr := u.Port()
	port := 80
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, Unreachablef(err, "parsing proxy port %q", portStr)
		}
		port = p
	}
	return &net.TCPAddr{IP: net.ParseIP(host), Port: port}, nil
}

// matchesNonProxyHosts implements the http.nonProxyHosts wildcard grammar:
// entries separated by "|", each either a literal hostname, or a wildcard
// with exactly one leading or trailing "*" (anchored at the opposite end).
// Entries with more than one "*" are unsupported and logged, then ignored.
func matchesNonProxyHosts(host string, nonProxyHosts string, log Logger) bool {
	if nonProxyHosts == "" {
		return false
	}
	for _, entry := range strings.Split(nonProxyHosts, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Count(entry, "*") > 1 {
			log.DLogf("unsupported http.nonProxyHosts entry with multiple wildcards: %q", entry)
			continue
		}
		switch {
		case strings.HasPrefix(entry, "*"):
			if strings.HasSuffix(host, entry[1:]) {
				return true
			}
		case strings.HasSuffix(entry, "*"):
			if strings.HasPrefix(host, entry[:len(entry)-1]) {
				return true
			}
		case entry == host:
			return true
		}
	}
	return false
}

// ShouldProxy implements the environment no_proxy exclusion rules of §4.2:
// comma-separated entries, leading dots normalized, IP addresses matched
// verbatim, FQDN matching by repeatedly stripping the leading subdomain
// label (up to 128 levels).
func ShouldProxy(host string, noProxy string) bool {
	if noProxy == "" {
		return true
	}
	if net.ParseIP(host) != nil {
		for _, entry := range strings.Split(noProxy, ",") {
			if strings.TrimSpace(entry) == host {
				return false
			}
		}
		return true
	}

	entries := make([]string, 0)
	for _, e := range strings.Split(noProxy, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		entries = append(entries, normalizeNoProxyEntry(e))
	}

	h := strings.ToLower(host)
	for i := 0; i < 128; i++ {
		for _, e := range entries {
			if h == e {
				return false
			}
		}
		idx := strings.IndexByte(h, '.')
		if idx < 0 {
			break
		}
		h = h[idx+1:]
	}
	return true
}

func normalizeNoProxyEntry(e string) string {
	return strings.ToLower(strings.TrimPrefix(e, "."))
}
