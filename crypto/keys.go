// Package crypto implements the two signature systems used for signing
// commits: ECDSA over the NIST P-256 ("ES256") and K-256 / secp256k1
// ("ES256K") curves, with SHA-256 hashing and low-S signatures.
//
// Keys are referenced by did:key strings, which encode the curve type
// (as a multicodec prefix) along with the compressed public key bytes.
package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidSignature is a generic signature verification failure. The
// specific reason is deliberately not exposed.
var ErrInvalidSignature = errors.New("invalid signature")

// PrivateKey is a currently-loadable signing key.
type PrivateKey interface {
	Equal(other PrivateKey) bool

	// PublicKey returns the corresponding verification key.
	PublicKey() (PublicKey, error)

	// HashAndSign computes the SHA-256 digest of the raw bytes, then
	// signs the digest, returning a 64-byte low-S signature.
	HashAndSign(content []byte) ([]byte, error)
}

// PrivateKeyExportable is a private key whose secret material can be
// serialized and stored.
type PrivateKeyExportable interface {
	PrivateKey

	// Bytes is the raw binary serialization of the secret key. No
	// ASN.1 or other enclosing structure.
	Bytes() []byte

	// Multibase is the string serialization: multicodec prefix plus
	// key bytes, base58btc encoded with a "z" prefix.
	Multibase() string
}

// PublicKey is a verification key for one of the supported curves.
type PublicKey interface {
	Equal(other PublicKey) bool

	// Bytes is the compressed binary serialization of the key.
	Bytes() []byte

	// UncompressedBytes is the uncompressed binary serialization.
	UncompressedBytes() []byte

	// HashAndVerify computes the SHA-256 digest of the raw bytes and
	// verifies the signature against the digest. Returns nil for valid
	// low-S signatures, ErrInvalidSignature otherwise.
	HashAndVerify(content, sig []byte) error

	// HashAndVerifyLenient is HashAndVerify without the low-S
	// requirement. Needed for, eg, JWT validation.
	HashAndVerifyLenient(content, sig []byte) error

	// Multibase is the string serialization: multicodec prefix plus
	// compressed key bytes, base58btc encoded with a "z" prefix.
	Multibase() string

	// DIDKey is the did:key string serialization of the key.
	DIDKey() string
}

// multicodec varint prefixes for the supported key types
var (
	prefixP256Pub  = []byte{0x80, 0x24} // p256-pub, code 0x1200
	prefixK256Pub  = []byte{0xE7, 0x01} // secp256k1-pub, code 0xE7
	prefixP256Priv = []byte{0x86, 0x26} // p256-priv, code 0x1306
	prefixK256Priv = []byte{0x81, 0x26} // secp256k1-priv, code 0x1301
)

// ParsePublicDIDKey parses a did:key string into a public key of the
// appropriate curve type.
func ParsePublicDIDKey(didKey string) (PublicKey, error) {
	mb, ok := strings.CutPrefix(didKey, "did:key:")
	if !ok {
		return nil, fmt.Errorf("string is not a did:key: %s", didKey)
	}
	return ParsePublicMultibase(mb)
}

// ParsePublicMultibase parses a multibase string (with multicodec
// prefix) into a public key of the appropriate curve type. Only the
// base58btc ("z") encoding is supported.
func ParsePublicMultibase(encoded string) (PublicKey, error) {
	raw, ok := strings.CutPrefix(encoded, "z")
	if !ok {
		return nil, fmt.Errorf("public key multibase is not base58btc")
	}
	data, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid public key multibase: %w", err)
	}
	if len(data) < 3 {
		return nil, fmt.Errorf("public key multibase too short")
	}
	switch {
	case data[0] == prefixP256Pub[0] && data[1] == prefixP256Pub[1]:
		return ParsePublicBytesP256(data[2:])
	case data[0] == prefixK256Pub[0] && data[1] == prefixK256Pub[1]:
		return ParsePublicBytesK256(data[2:])
	default:
		return nil, fmt.Errorf("unsupported public key multicodec prefix: 0x%x 0x%x", data[0], data[1])
	}
}

// ParsePrivateMultibase parses a multibase string (with multicodec
// prefix) into a private key of the appropriate curve type.
func ParsePrivateMultibase(encoded string) (PrivateKeyExportable, error) {
	raw, ok := strings.CutPrefix(encoded, "z")
	if !ok {
		return nil, fmt.Errorf("private key multibase is not base58btc")
	}
	data, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key multibase: %w", err)
	}
	if len(data) < 3 {
		return nil, fmt.Errorf("private key multibase too short")
	}
	switch {
	case data[0] == prefixP256Priv[0] && data[1] == prefixP256Priv[1]:
		return ParsePrivateBytesP256(data[2:])
	case data[0] == prefixK256Priv[0] && data[1] == prefixK256Priv[1]:
		return ParsePrivateBytesK256(data[2:])
	default:
		return nil, fmt.Errorf("unsupported private key multicodec prefix: 0x%x 0x%x", data[0], data[1])
	}
}
