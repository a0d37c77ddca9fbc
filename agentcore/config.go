package agentcore

import (
	"crypto/tls"
	"time"
)

// Config collects every externally-supplied knob the inbound TCP
// connector needs: candidate controller URLs, credentials, proxy
// settings, protocol enablement overrides, and TLS material. Grounded
// on share/client.go's Config (same role: one value object threaded
// through connection setup), generalized from one websocket endpoint to
// a candidate-URL list with protocol negotiation.
type Config struct {
	CandidateURLs    []string
	Secret           string
	ClientName       string
	Credentials      string // "user:pass" for the HTTP endpoint probe
	ProxyCredentials string // "user:pass" for an HTTP CONNECT proxy
	Tunnel           string // optional explicit "host:port" override

	// SystemProxyURL and SystemNonProxyHosts feed spec.md §4.2 step 1's
	// "system proxy selector": SystemProxyURL is consulted before the
	// environment http_proxy/no_proxy combination, unless the target host
	// matches SystemNonProxyHosts (the http.nonProxyHosts "|"-separated
	// wildcard grammar). Both are empty by default, which falls through
	// to golang.org/x/net/http/httpproxy's environment handling alone.
	SystemProxyURL      string
	SystemNonProxyHosts string

	// DisabledProtocols mirrors
	// "org.jenkinsci.remoting.engine.<ClassName>.disabled": protocol
	// names this agent refuses to try even if the controller offers them.
	DisabledProtocols []string
	// ProtocolOverride mirrors "...protocolNamesToTry": if non-empty,
	// replaces the declared preference order entirely.
	ProtocolOverride []string

	TLSConfig *tls.Config

	SocketTimeout    time.Duration // default 30 minutes; no timeout or deadline is applied from it when dialing
	ResolveDeadline  time.Duration
	RetryOptions     RetryOptions
	WaitForReadyTime time.Duration

	Logger Logger
}

func (c *Config) withDefaults() *Config {
	cp := *c
	if cp.SocketTimeout == 0 {
		cp.SocketTimeout = 30 * time.Minute
	}
	if cp.ResolveDeadline == 0 {
		cp.ResolveDeadline = 10 * time.Minute
	}
	if cp.Logger == nil {
		cp.Logger = NewLogger("agentcore", LogLevelInfo)
	}
	return &cp
}

func (c *Config) disabledSet() map[string]bool {
	m := make(map[string]bool, len(c.DisabledProtocols))
	for _, name := range c.DisabledProtocols {
		m[name] = true
	}
	return m
}
