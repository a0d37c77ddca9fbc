package agentcore

// BuildVersion is the implementation version string, compared against the
// controller's advertised Remoting-Minimum-Version header during endpoint
// resolution (spec.md §4.3).
var BuildVersion = "1.0.0-dev"

// Protocol name constants, as advertised by the controller's
// X-Jenkins-Agent-Protocols header and matched against locally enabled
// protocol handlers (spec.md §3, §4.6).
const (
	ProtocolV1          = "JNLP-connect"
	ProtocolV2          = "JNLP2-connect"
	ProtocolV3          = "JNLP3-connect"
	ProtocolV4          = "JNLP4-connect"
	ProtocolV4Plaintext = "JNLP4-plaintext"
	ProtocolV4Proxy     = "JNLP4-connect-proxy"
)

// defaultProtocolPreference is the declared preference order used by the
// connector when negotiating a protocol to use (spec.md §4.6 step 6):
// v4 TLS first, then v4 plaintext, then v3, v2, v1. v4-proxy is only used
// when explicitly requested for reverse-proxy traversal.
var defaultProtocolPreference = []string{
	ProtocolV4,
	ProtocolV4Plaintext,
	ProtocolV3,
	ProtocolV2,
	ProtocolV1,
}
