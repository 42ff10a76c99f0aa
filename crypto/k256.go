package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
	secp256k1 "gitlab.com/yawning/secp256k1-voi"
	secp256k1secec "gitlab.com/yawning/secp256k1-voi/secec"
)

// PrivateKeyK256 is a signing key on the K-256 / secp256k1 / ES256K
// curve. Secret key material is naively stored in memory.
type PrivateKeyK256 struct {
	privK256 *secp256k1secec.PrivateKey
}

// PublicKeyK256 is a verification key on the K-256 / secp256k1 /
// ES256K curve.
type PublicKeyK256 struct {
	pubK256 *secp256k1secec.PublicKey
}

var _ PrivateKey = (*PrivateKeyK256)(nil)
var _ PrivateKeyExportable = (*PrivateKeyK256)(nil)
var _ PublicKey = (*PublicKeyK256)(nil)

var k256Options = &secp256k1secec.ECDSAOptions{
	// Used to *verify* digest, not to re-hash
	Hash: crypto.SHA256,
	// Use `[R | S]` encoding.
	Encoding: secp256k1secec.EncodingCompact,
	// Reject high-S signatures (`s > n/2`)
	RejectMalleable: true,
}

var k256LenientOptions = &secp256k1secec.ECDSAOptions{
	Hash:            crypto.SHA256,
	Encoding:        secp256k1secec.EncodingCompact,
	RejectMalleable: false,
}

// GeneratePrivateKeyK256 creates a secure new K-256 signing key from
// scratch.
func GeneratePrivateKeyK256() (*PrivateKeyK256, error) {
	key, err := secp256k1secec.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("K-256/secp256k1 key generation failed: %w", err)
	}
	return &PrivateKeyK256{privK256: key}, nil
}

// ParsePrivateBytesK256 loads a [PrivateKeyK256] from raw bytes, as
// exported by the Bytes method. Calling code must remove any string
// encoding (hex, base64, etc) first.
func ParsePrivateBytesK256(data []byte) (*PrivateKeyK256, error) {
	sk, err := secp256k1secec.NewPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("invalid K-256/secp256k1 private key: %w", err)
	}
	return &PrivateKeyK256{privK256: sk}, nil
}

// Equal checks if the two private keys are the same. Note that the
// naive == operator does not work for most equality checks.
func (k *PrivateKeyK256) Equal(other PrivateKey) bool {
	otherK256, ok := other.(*PrivateKeyK256)
	if ok {
		return k.privK256.Equal(otherK256.privK256)
	}
	return false
}

// Bytes serializes the secret key material. For K-256 this is the
// "compact" encoding, 32 bytes long.
func (k *PrivateKeyK256) Bytes() []byte {
	return k.privK256.Bytes()
}

// Multibase string encoding of the private key, including a multicodec
// prefix.
func (k *PrivateKeyK256) Multibase() string {
	kbytes := k.Bytes()
	kbytes = append([]byte{prefixK256Priv[0], prefixK256Priv[1]}, kbytes...)
	return "z" + base58.Encode(kbytes)
}

// PublicKey returns the corresponding [PublicKeyK256].
func (k *PrivateKeyK256) PublicKey() (PublicKey, error) {
	pub := PublicKeyK256{pubK256: k.privK256.PublicKey()}
	if err := pub.ensureBytes(); err != nil {
		return nil, err
	}
	return &pub, nil
}

// HashAndSign computes the SHA-256 digest of the raw bytes, then signs
// the digest. The resulting signature is the 64-byte `[R | S]`
// encoding, always in the "low-S" form.
func (k *PrivateKeyK256) HashAndSign(content []byte) ([]byte, error) {
	hash := sha256.Sum256(content)
	return k.privK256.Sign(rand.Reader, hash[:], k256Options)
}

// ParsePublicBytesK256 loads a [PublicKeyK256] from the "compressed"
// curve format, as exported by the Bytes method.
func ParsePublicBytesK256(data []byte) (*PublicKeyK256, error) {
	// secp256k1secec.NewPublicKey accepts any valid encoding, while we
	// explicitly want compressed, so use the explicit point
	// decompression routine.
	p, err := secp256k1.NewIdentityPoint().SetCompressedBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid K-256/secp256k1 public key: %w", err)
	}

	pubK, err := secp256k1secec.NewPublicKeyFromPoint(p)
	if err != nil {
		return nil, fmt.Errorf("invalid K-256/secp256k1 public key: %w", err)
	}
	pub := PublicKeyK256{pubK256: pubK}
	if err := pub.ensureBytes(); err != nil {
		return nil, err
	}
	return &pub, nil
}

// ParsePublicUncompressedBytesK256 loads a [PublicKeyK256] from the
// uncompressed curve format, as exported by UncompressedBytes.
func ParsePublicUncompressedBytesK256(data []byte) (*PublicKeyK256, error) {
	pubK, err := secp256k1secec.NewPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("invalid K-256/secp256k1 public key: %w", err)
	}
	pub := PublicKeyK256{pubK256: pubK}
	if err := pub.ensureBytes(); err != nil {
		return nil, err
	}
	return &pub, nil
}

// Equal checks if the two public keys are the same. Note that the
// naive == operator does not work for most equality checks.
func (k *PublicKeyK256) Equal(other PublicKey) bool {
	otherK256, ok := other.(*PublicKeyK256)
	if ok {
		return k.pubK256.Equal(otherK256.pubK256)
	}
	return false
}

// verifies that this public key is safe to export as bytes later on
func (k *PublicKeyK256) ensureBytes() error {
	p := k.pubK256.Point()
	if p.IsIdentity() != 0 {
		return fmt.Errorf("unexpected invalid K-256/secp256k1 public key (internal)")
	}
	return nil
}

// UncompressedBytes serializes the key in "uncompressed" binary format
// (65 bytes).
func (k *PublicKeyK256) UncompressedBytes() []byte {
	return k.pubK256.Point().UncompressedBytes()
}

// Bytes serializes the key in "compressed" binary format (33 bytes).
func (k *PublicKeyK256) Bytes() []byte {
	return k.pubK256.Point().CompressedBytes()
}

// HashAndVerify computes the SHA-256 digest of the raw bytes, then
// verifies the signature against the digest. Requires a "low-S"
// signature.
func (k *PublicKeyK256) HashAndVerify(content, sig []byte) error {
	hash := sha256.Sum256(content)
	if !k.pubK256.Verify(hash[:], sig, k256Options) {
		return ErrInvalidSignature
	}
	return nil
}

// HashAndVerifyLenient is HashAndVerify without the low-S requirement.
func (k *PublicKeyK256) HashAndVerifyLenient(content, sig []byte) error {
	hash := sha256.Sum256(content)
	if !k.pubK256.Verify(hash[:], sig, k256LenientOptions) {
		return ErrInvalidSignature
	}
	return nil
}

// Multibase string encoding of the public key: multicodec prefix plus
// compressed curve bytes, base58btc.
func (k *PublicKeyK256) Multibase() string {
	kbytes := k.Bytes()
	kbytes = append([]byte{prefixK256Pub[0], prefixK256Pub[1]}, kbytes...)
	return "z" + base58.Encode(kbytes)
}

// DIDKey returns the did:key string encoding of the public key.
func (k *PublicKeyK256) DIDKey() string {
	return "did:key:" + k.Multibase()
}
