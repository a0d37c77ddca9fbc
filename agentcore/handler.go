package agentcore

import (
	"crypto/rsa"
	"crypto/tls"

	"github.com/agentwire/remotecore/channel"
)

// ProtocolHandler names one negotiable protocol and whether this agent
// has it enabled (spec.md §3 "Protocol handler"). client_database is
// omitted: it is a server-side concept only, and this core never plays
// the server role (§12 decision 1).
type ProtocolHandler struct {
	Name    string
	Enabled bool
}

// EnabledHandlers builds the ordered list of protocol handlers this
// agent will try, in declared preference order, filtered by:
//   - disabled set (from config, mirroring
//     "org.jenkinsci.remoting.engine.<ClassName>.disabled")
//   - an explicit override list (mirroring "...protocolNamesToTry"),
//     which if non-empty replaces the default preference order entirely
//   - the controller's advertised supported-protocol set, if the
//     endpoint declares one
func EnabledHandlers(endpoint *Endpoint, disabled map[string]bool, override []string) []ProtocolHandler {
	order := defaultProtocolPreference
	if len(override) > 0 {
		order = override
	}

	handlers := make([]ProtocolHandler, 0, len(order))
	for _, name := range order {
		enabled := !disabled[name]
		if endpoint != nil && !endpoint.SupportsProtocol(name) {
			enabled = false
		}
		handlers = append(handlers, ProtocolHandler{Name: name, Enabled: enabled})
	}
	return handlers
}

// IdentityVerifierListener is the default listener every connector
// installs (spec.md §4.6 "Listener behavior installed by the
// connector"): it confirms the peer's TLS certificate matches the
// endpoint's advertised instance identity during BEFORE_PROPERTIES,
// unconditionally approves AFTER_PROPERTIES, and persists the
// reconnect cookie once the channel is up.
type IdentityVerifierListener struct {
	BaseListener

	Expected     *rsa.PublicKey
	ChannelBuilder channel.Builder
	Log          Logger

	// LastCookie is populated from AFTER_CHANNEL's negotiated properties
	// and read back by the connector before its next reconnect attempt.
	LastCookie string
	// PeerCertState, if set by the caller before dispatch, carries the
	// negotiated TLS connection state for a v4 attempt; nil for
	// non-TLS/legacy attempts, which skip the identity check entirely.
	PeerCertState *tls.ConnectionState
}

func (l *IdentityVerifierListener) OnBeforeProperties(ev *Event) {
	if l.PeerCertState == nil || len(l.PeerCertState.PeerCertificates) == 0 {
		return
	}
	peerKey, ok := l.PeerCertState.PeerCertificates[0].PublicKey.(*rsa.PublicKey)
	if !ok || !publicKeysEqual(l.Expected, peerKey) {
		fp, _ := FingerprintPublicKey(l.Expected)
		ev.Reject("Expecting identity " + fp)
		return
	}
	if l.Log != nil {
		l.Log.ILogf("remote identity confirmed")
	}
}

func (l *IdentityVerifierListener) OnAfterProperties(ev *Event) {
	ev.Approve()
}

func (l *IdentityVerifierListener) OnBeforeChannel(ev *Event) {
	if l.ChannelBuilder != nil {
		// The channel builder is handed off via ConnState.ChannelBuilder();
		// nothing further to mutate here, since this implementation has no
		// JAR-cache attachment step (out of scope, §1).
	}
}

func (l *IdentityVerifierListener) OnAfterChannel(ev *Event) {
	props, err := ev.State().Properties()
	if err != nil {
		return
	}
	if cookie, ok := props["Cookie"]; ok {
		l.LastCookie = cookie
	}
}
