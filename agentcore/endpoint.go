package agentcore

import (
	"crypto/rsa"
	"net"
	"net/url"
)

// Endpoint is an immutable resolved controller connection target (spec.md
// §3). SupportedProtocols is nil when the controller did not advertise a
// restricted set, meaning "all locally enabled protocols are negotiable".
type Endpoint struct {
	Host               string
	Port               int
	InstancePublicKey  *rsa.PublicKey
	SupportedProtocols []string
	ServiceURL         *url.URL
	ProxyCredentials   string // "user:pass", empty if none
}

// Equal implements the NAT-loopback-tolerant equality of spec.md §3: any
// two addresses are equal when one is the any/unspecified address and the
// other is loopback or link-local.
func (e Endpoint) Equal(other Endpoint) bool {
	if e.Port != other.Port {
		return false
	}
	return addressesEqual(e.Host, other.Host)
}

func addressesEqual(a, b string) bool {
	if a == b {
		return true
	}
	ipA := net.ParseIP(a)
	ipB := net.ParseIP(b)
	if ipA == nil || ipB == nil {
		return false
	}
	if ipA.IsUnspecified() && (ipB.IsLoopback() || ipB.IsLinkLocalUnicast()) {
		return true
	}
	if ipB.IsUnspecified() && (ipA.IsLoopback() || ipA.IsLinkLocalUnicast()) {
		return true
	}
	return false
}

// SupportsProtocol reports whether name is negotiable against this
// endpoint: true when SupportedProtocols is nil ("all") or name appears in
// the advertised set.
func (e Endpoint) SupportsProtocol(name string) bool {
	if e.SupportedProtocols == nil {
		return true
	}
	for _, p := range e.SupportedProtocols {
		if p == name {
			return true
		}
	}
	return false
}
