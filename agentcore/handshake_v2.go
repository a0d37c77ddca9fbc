package agentcore

import (
	"bufio"
	"io"
)

// HandshakeV2 adds a properties blob and a reconnect cookie to v1's wire
// shape: the client sends the secret, then a "key=value\n" blob (itself
// length-prefixed) carrying the client name and any presented cookie, and the
// server answers with a "Welcome" line followed by RFC-822-style header
// lines terminated by a blank line, one of which may carry a fresh
// Cookie for the next reconnect (spec.md §4.7 "v2: adds a cookie for
// reconnection and free-form properties").
func HandshakeV2(rw io.ReadWriter, req HandshakeRequest) (*HandshakeResult, error) {
	fields := map[string]string{
		"Client": req.ClientName,
	}
	if req.Cookie != "" {
		fields["Cookie"] = req.Cookie
	}
	blob := encodePropertiesBlob(fields)

	err := writeMarkerAndFields(rw, ProtocolV2, func(w io.Writer) error {
		if err := WriteUTF(w, req.Secret); err != nil {
			return err
		}
		return WriteUTF(w, blob)
	})
	if err != nil {
		return nil, Unreachablef(err, "sending v2 handshake")
	}

	r := bufio.NewReader(rw)
	if err := readWelcomeLine(r); err != nil {
		return nil, err
	}
	headers, err := ReadHeaderLines(r)
	if err != nil {
		return nil, Unreachablef(err, "reading v2 response headers")
	}

	result := &HandshakeResult{Properties: headers}
	if cookie, ok := headers["Cookie"]; ok {
		result.NewCookie = cookie
		delete(result.Properties, "Cookie")
	}
	return result, nil
}
