package agentcore

import (
	"crypto/sha256"
	"net"
	"testing"
)

// fakeV3Server plays the server role inline for handshake tests: the
// agent core never runs a server in production (§12 decision: agent
// core does not run a server, only ever acts as the handshake client).
type fakeV3Server struct {
	conn        net.Conn
	key, iv     []byte
	cookiePlain string
	regens      int // count of ciphertext regenerations the framing guard forced
}

func (s *fakeV3Server) run(t *testing.T) error {
	t.Helper()

	if marker, err := ReadUTF(s.conn); err != nil {
		return err
	} else if marker != "Protocol:"+ProtocolV3 {
		return Internalf("unexpected marker %q", marker)
	}
	if _, err := ReadUTF(s.conn); err != nil { // client name
		return err
	}
	encChallenge, err := ReadBytesLP(s.conn)
	if err != nil {
		return err
	}
	challenge, err := DecryptField(s.key, s.iv, encChallenge)
	if err != nil {
		return err
	}
	if _, err := ReadBytesLP(s.conn); err != nil { // presented cookie (ignored in this test)
		return err
	}

	if err := WriteUTF(s.conn, "Negotiate"); err != nil {
		return err
	}
	hash := sha256Sum(challenge)
	encHash, err := EncryptField(s.key, s.iv, hash)
	if err != nil {
		return err
	}
	if err := WriteBytesLP(s.conn, encHash); err != nil {
		return err
	}

	welcome, err := ReadUTF(s.conn)
	if err != nil {
		return err
	}
	if welcome != "Welcome" {
		return Internalf("expected client Welcome, got %q", welcome)
	}

	serverChallenge := make([]byte, v3ChallengeSize)
	for i := range serverChallenge {
		serverChallenge[i] = byte(i + 1)
	}
	encServerChallenge, err := EncryptField(s.key, s.iv, serverChallenge)
	if err != nil {
		return err
	}
	if err := WriteBytesLP(s.conn, encServerChallenge); err != nil {
		return err
	}

	encServerHash, err := ReadBytesLP(s.conn)
	if err != nil {
		return err
	}
	serverHash, err := DecryptField(s.key, s.iv, encServerHash)
	if err != nil {
		return err
	}
	if !constantTimeEqual(serverHash, sha256Sum(serverChallenge)) {
		return Internalf("client's server-challenge hash mismatch")
	}

	if err := WriteUTF(s.conn, "Welcome"); err != nil {
		return err
	}

	// Regenerate the cookie ciphertext until it survives framing, bounded
	// by maxCookieRegenAttempts (spec.md §4.7/§8 E2E-4).
	var encCookie []byte
	for attempt := 0; ; attempt++ {
		if attempt >= maxCookieRegenAttempts {
			return Internalf("exceeded max cookie regen attempts")
		}
		candidate, err := EncryptField(s.key, s.iv, []byte(s.cookiePlain))
		if err != nil {
			return err
		}
		if !v3CookieNeedsRegen(candidate) {
			encCookie = candidate
			break
		}
		s.regens++
		// A real server would vary some nonce/IV per attempt; this test
		// server gets a different ciphertext on the next attempt by never
		// reusing the same cookie plaintext twice.
		s.cookiePlain = s.cookiePlain + "x"
	}
	if err := WriteBytesLP(s.conn, encCookie); err != nil {
		return err
	}

	if _, err := ReadBytesLP(s.conn); err != nil { // channel key
		return err
	}
	if _, err := ReadBytesLP(s.conn); err != nil { // channel iv
		return err
	}
	return nil
}

func TestHandshakeV3RoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	key, iv, err := DeriveHandshakeCipher("s3cr3t", "agent1")
	if err != nil {
		t.Fatalf("DeriveHandshakeCipher: %v", err)
	}

	cookiePlain, err := GenerateCookie()
	if err != nil {
		t.Fatalf("GenerateCookie: %v", err)
	}
	fake := &fakeV3Server{conn: server, key: key, iv: iv, cookiePlain: cookiePlain}

	errCh := make(chan error, 1)
	go func() { errCh <- fake.run(t) }()

	res, err := HandshakeV3(client, HandshakeRequest{Secret: "s3cr3t", ClientName: "agent1"})
	if err != nil {
		t.Fatalf("HandshakeV3: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}
	if res.NewCookie == "" {
		t.Errorf("expected a new cookie")
	}
	if len(res.ChannelKey) != v3KeySize || len(res.ChannelIV) != 16 {
		t.Errorf("expected channel key/iv to be generated, got %d/%d bytes", len(res.ChannelKey), len(res.ChannelIV))
	}
}

func TestHandshakeV3ChallengeMismatchIsAuthenticationFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	key, iv, err := DeriveHandshakeCipher("s3cr3t", "agent1")
	if err != nil {
		t.Fatalf("DeriveHandshakeCipher: %v", err)
	}

	go func() {
		ReadUTF(server)
		ReadUTF(server)
		ReadBytesLP(server)
		ReadBytesLP(server)
		WriteUTF(server, "Negotiate")
		wrongHash, _ := EncryptField(key, iv, make([]byte, sha256.Size))
		WriteBytesLP(server, wrongHash)
	}()

	_, err = HandshakeV3(client, HandshakeRequest{Secret: "s3cr3t", ClientName: "agent1"})
	if !IsKind(err, KindAuthenticationFailure) {
		t.Errorf("expected KindAuthenticationFailure, got %v", err)
	}
}

func TestV3CookieNeedsRegenDetectsFramingHazards(t *testing.T) {
	cases := []struct {
		data []byte
		want bool
	}{
		{[]byte("plain"), false},
		{[]byte("has\nnewline"), true},
		{[]byte(" leadingspace"), true},
		{[]byte("trailingspace "), true},
		{[]byte{}, false},
	}
	for _, c := range cases {
		if got := v3CookieNeedsRegen(c.data); got != c.want {
			t.Errorf("v3CookieNeedsRegen(%q) = %v, want %v", c.data, got, c.want)
		}
	}
}
