package agentcore

import (
	"bufio"
	"encoding/binary"
	"io"
)

// MaxUTFLength bounds the length-prefixed string wire format: a 16-bit
// unsigned byte count, so at most 65535 bytes of UTF-8 per string.
const MaxUTFLength = 65535

// WriteUTF writes s on w as a 2-byte big-endian byte-length prefix
// followed by its UTF-8 bytes — the length-prefixed string framing shared
// by every handshake variant (spec.md §4.7, §6).
func WriteUTF(w io.Writer, s string) error {
	b := []byte(s)
	if len(b) > MaxUTFLength {
		return Internalf("UTF string too long: %d bytes (max %d)", len(b), MaxUTFLength)
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadUTF reads a string previously written by WriteUTF.
func ReadUTF(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

// WriteBytesLP writes b as a 2-byte big-endian length prefix followed by
// the raw bytes, used for v3's encrypted challenge/cookie/cipher fields
// (which are not valid UTF-8 and so cannot use WriteUTF).
func WriteBytesLP(w io.Writer, b []byte) error {
	if len(b) > MaxUTFLength {
		return Internalf("byte field too long: %d bytes (max %d)", len(b), MaxUTFLength)
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadBytesLP reads a field previously written by WriteBytesLP.
func ReadBytesLP(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// WriteProtocolMarker writes the initial "Protocol:<NAME>" marker common
// to all handshake variants (spec.md §4.7).
func WriteProtocolMarker(w io.Writer, name string) error {
	return WriteUTF(w, "Protocol:"+name)
}

// ReadLine reads a single newline-terminated ASCII line, trimming the
// trailing "\r\n" or "\n", used by v1/v2's "Welcome" response line.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// WriteHeaderLines writes an RFC-822-ish "Key: Value\n" block terminated
// by a blank line, the format of v2's response headers (read back by
// ReadHeaderLines).
func WriteHeaderLines(w io.Writer, headers map[string]string) error {
	bw := bufio.NewWriter(w)
	for k, v := range headers {
		if _, err := bw.WriteString(k + ": " + v + "\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadHeaderLines reads "Key: Value\n" lines until a blank line, returning
// the accumulated map.
func ReadHeaderLines(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := ReadLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		idx := indexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := line[:idx]
		val := line[idx+1:]
		for len(val) > 0 && val[0] == ' ' {
			val = val[1:]
		}
		headers[key] = val
	}
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
