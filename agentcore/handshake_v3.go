package agentcore

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
)

// v3ChallengeSize is the minimum 128-bit challenge length spec.md §4.7
// requires ("encrypted random challenge (>= 128 bits)").
const v3ChallengeSize = 16

// HandshakeV3 performs the mutual challenge-response handshake: both
// sides prove knowledge of the shared secret by encrypting a random
// challenge under a cipher derived from (secret, client_name) and
// exchanging hashes of it. Finally the client sends a freshly generated
// channel key and IV, encrypted under the handshake cipher, and returns
// them in the result. Neither this function nor the connector wraps the
// stream in a channel cipher; bytes after the handshake travel as-is.
//
// The agent core never plays the server role in production — only a
// client. handshake_v3_test.go exercises this against an inline fake
// server.
func HandshakeV3(rw io.ReadWriter, req HandshakeRequest) (*HandshakeResult, error) {
	key, iv, err := DeriveHandshakeCipher(req.Secret, req.ClientName)
	if err != nil {
		return nil, err
	}

	challenge := make([]byte, v3ChallengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, Internalf("generating v3 challenge: %v", err)
	}
	encChallenge, err := EncryptField(key, iv, challenge)
	if err != nil {
		return nil, err
	}

	var encCookie []byte
	if req.Cookie != "" {
		encCookie, err = EncryptField(key, iv, []byte(req.Cookie))
		if err != nil {
			return nil, err
		}
	}

	if err := WriteProtocolMarker(rw, ProtocolV3); err != nil {
		return nil, Unreachablef(err, "writing v3 protocol marker")
	}
	if err := WriteUTF(rw, req.ClientName); err != nil {
		return nil, Unreachablef(err, "sending v3 client name")
	}
	if err := WriteBytesLP(rw, encChallenge); err != nil {
		return nil, Unreachablef(err, "sending v3 challenge")
	}
	if err := WriteBytesLP(rw, encCookie); err != nil {
		return nil, Unreachablef(err, "sending v3 cookie")
	}

	negotiate, err := ReadUTF(rw)
	if err != nil {
		return nil, Unreachablef(err, "reading v3 negotiate marker")
	}
	if negotiate != "Negotiate" {
		return nil, ProtocolRefusalf(nil, "expected Negotiate, got %q", negotiate)
	}

	encChallengeHash, err := ReadBytesLP(rw)
	if err != nil {
		return nil, Unreachablef(err, "reading v3 challenge hash")
	}
	challengeHash, err := DecryptField(key, iv, encChallengeHash)
	if err != nil {
		return nil, err
	}
	wantHash := sha256Sum(challenge)
	if !constantTimeEqual(challengeHash, wantHash) {
		return nil, AuthenticationFailuref(nil, "v3 challenge mismatch")
	}

	if err := WriteUTF(rw, "Welcome"); err != nil {
		return nil, Unreachablef(err, "sending v3 first Welcome")
	}

	encServerChallenge, err := ReadBytesLP(rw)
	if err != nil {
		return nil, Unreachablef(err, "reading v3 server challenge")
	}
	serverChallenge, err := DecryptField(key, iv, encServerChallenge)
	if err != nil {
		return nil, err
	}
	serverHash := sha256Sum(serverChallenge)
	encServerHash, err := EncryptField(key, iv, serverHash)
	if err != nil {
		return nil, err
	}
	if err := WriteBytesLP(rw, encServerHash); err != nil {
		return nil, Unreachablef(err, "sending v3 server challenge hash")
	}

	welcome, err := ReadUTF(rw)
	if err != nil {
		return nil, Unreachablef(err, "reading v3 second Welcome")
	}
	if welcome != "Welcome" {
		return nil, ProtocolRefusalf(nil, "expected Welcome, got %q", welcome)
	}

	encNewCookie, err := ReadBytesLP(rw)
	if err != nil {
		return nil, Unreachablef(err, "reading v3 cookie")
	}
	newCookie, err := DecryptField(key, iv, encNewCookie)
	if err != nil {
		return nil, err
	}

	chKey, chIV, err := GenerateChannelCipher()
	if err != nil {
		return nil, err
	}
	encChKey, err := EncryptField(key, iv, chKey)
	if err != nil {
		return nil, err
	}
	encChIV, err := EncryptField(key, iv, chIV)
	if err != nil {
		return nil, err
	}
	if err := WriteBytesLP(rw, encChKey); err != nil {
		return nil, Unreachablef(err, "sending v3 channel cipher key")
	}
	if err := WriteBytesLP(rw, encChIV); err != nil {
		return nil, Unreachablef(err, "sending v3 channel cipher iv")
	}

	return &HandshakeResult{
		Properties: map[string]string{},
		NewCookie:  string(newCookie),
		ChannelKey: chKey,
		ChannelIV:  chIV,
	}, nil
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}
