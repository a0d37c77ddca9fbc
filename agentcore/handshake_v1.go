package agentcore

import (
	"bufio"
	"io"
)

// HandshakeV1 performs the plaintext v1 handshake: a protocol marker
// followed by the secret and client name as two length-prefixed
// strings, with no confirmation of identity and no reconnect cookie
// (spec.md §4.7 "v1: no security at all beyond the shared secret").
func HandshakeV1(rw io.ReadWriter, req HandshakeRequest) (*HandshakeResult, error) {
	err := writeMarkerAndFields(rw, ProtocolV1, func(w io.Writer) error {
		if err := WriteUTF(w, req.Secret); err != nil {
			return err
		}
		return WriteUTF(w, req.ClientName)
	})
	if err != nil {
		return nil, Unreachablef(err, "sending v1 handshake")
	}

	r := bufio.NewReader(rw)
	if err := readWelcomeLine(r); err != nil {
		return nil, err
	}
	return &HandshakeResult{Properties: map[string]string{}}, nil
}
