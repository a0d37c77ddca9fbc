package agentcore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/hkdf"
)

// v3KeySize is 128 bits, per spec.md §4.7 "Key size is 128 bits for
// portability." AES-CTR/TLS are used as black boxes (explicit non-goal:
// no cryptographic primitive design) — this file only wires stdlib
// primitives together the way the handshake's wire steps require.
const v3KeySize = 16

// DeriveHandshakeCipher derives the symmetric (key, iv) pair the v3
// handshake uses before any channel cipher has been negotiated, from
// (secret, clientName): HMAC-SHA256(secret, clientName) seeds an HKDF
// expansion (spec.md §4.7 "HMAC-SHA256(secret || client_name)-seeded
// AES/CTR").
func DeriveHandshakeCipher(secret, clientName string) (key, iv []byte, err error) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientName))
	seed := mac.Sum(nil)

	kdf := hkdf.New(sha256.New, seed, nil, []byte("agentcore-v3-handshake"))
	out := make([]byte, v3KeySize*2)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, nil, Internalf("deriving handshake cipher: %v", err)
	}
	return out[:v3KeySize], out[v3KeySize:], nil
}

// GenerateChannelCipher produces a fresh random AES-128 key+IV pair,
// independent of the shared secret. HandshakeV3 sends it to the peer at
// the end of the handshake and returns it; no stream is enciphered with it.
func GenerateChannelCipher() (key, iv []byte, err error) {
	key = make([]byte, v3KeySize)
	iv = make([]byte, aes.BlockSize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, Internalf("generating channel cipher key: %v", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, Internalf("generating channel cipher iv: %v", err)
	}
	return key, iv, nil
}

// ctrCrypt runs a fresh AES/CTR stream over plaintext/ciphertext. Each
// handshake field is enciphered independently with its own fresh stream
// instance (rather than one continuously advancing stream across the
// whole handshake), so field order on the wire need not match encryption
// order exactly.
func ctrCrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Internalf("AES key setup: %v", err)
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// EncryptField and DecryptField are the same operation (CTR is
// self-inverse); both names are kept so call sites read naturally.
func EncryptField(key, iv, plaintext []byte) ([]byte, error) { return ctrCrypt(key, iv, plaintext) }
func DecryptField(key, iv, ciphertext []byte) ([]byte, error) { return ctrCrypt(key, iv, ciphertext) }

// constantTimeEqual wraps crypto/subtle for the v3 challenge-hash
// comparisons.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// v3CookieNeedsRegen implements the §4.7/§12 open-question decision: the
// encrypted cookie ciphertext, once newline-framed on the wire, must not
// itself contain a '\n' byte and must not begin or end with ASCII
// whitespace — both of which would corrupt the newline-terminated framing
// v1/v2/v3 share for line-based fields.
func v3CookieNeedsRegen(ciphertext []byte) bool {
	if len(ciphertext) == 0 {
		return false
	}
	for _, b := range ciphertext {
		if b == '\n' {
			return true
		}
	}
	first, last := ciphertext[0], ciphertext[len(ciphertext)-1]
	isSpace := func(b byte) bool { return b == ' ' || b == '\t' || b == '\r' }
	return isSpace(first) || isSpace(last)
}

// maxCookieRegenAttempts is the 100-try bound of spec.md §4.7/§8 E2E-4.
const maxCookieRegenAttempts = 100
