package agentcore

import (
	"bufio"
	"io"
	"strings"
)

// HandshakeRequest carries the per-attempt inputs common to v1/v2/v3
// (spec.md §4.6 step 6b "initial request headers").
type HandshakeRequest struct {
	ClientName string
	Secret     string
	Cookie     string // presented cookie from a prior attempt, if any
}

// HandshakeResult carries what a completed v1/v2/v3 handshake produced:
// the negotiated property map and, where applicable, a fresh cookie to
// remember for the next reconnect.
type HandshakeResult struct {
	Properties map[string]string
	NewCookie  string

	// ChannelKey/ChannelIV are set only by HandshakeV3, whose last wire
	// step sends a fresh random key/IV to the peer. The stream itself is
	// not re-keyed with them.
	ChannelKey []byte
	ChannelIV  []byte
}

// encodePropertiesBlob serializes fields as a newline-terminated
// "key=value" properties-file blob, the format v2 sends as a single
// length-prefixed UTF string (spec.md §4.7).
func encodePropertiesBlob(fields map[string]string) string {
	var b strings.Builder
	for k, v := range fields {
		if v == "" {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}

func readWelcomeLine(r *bufio.Reader) error {
	line, err := ReadLine(r)
	if err != nil {
		return Unreachablef(err, "reading handshake response line")
	}
	if line != "Welcome" {
		return ProtocolRefusalf(nil, "%s", line)
	}
	return nil
}

// writeMarkerAndFields is the common v1/v2 preamble: write the protocol
// marker, then the variant-specific fields.
func writeMarkerAndFields(w io.Writer, protocolName string, writeFields func(io.Writer) error) error {
	if err := WriteProtocolMarker(w, protocolName); err != nil {
		return Unreachablef(err, "writing protocol marker")
	}
	return writeFields(w)
}
