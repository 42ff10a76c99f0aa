package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
)

// PrivateKeyP256 is a signing key on the NIST P-256 / secp256r1 /
// ES256 curve. Secret key material is naively stored in memory.
type PrivateKeyP256 struct {
	privP256ecdh *ecdh.PrivateKey
	privP256     ecdsa.PrivateKey
}

// PublicKeyP256 is a verification key on the NIST P-256 / secp256r1 /
// ES256 curve.
type PublicKeyP256 struct {
	pubP256 ecdsa.PublicKey
}

var _ PrivateKey = (*PrivateKeyP256)(nil)
var _ PrivateKeyExportable = (*PrivateKeyP256)(nil)
var _ PublicKey = (*PublicKeyP256)(nil)

// GeneratePrivateKeyP256 creates a secure new P-256 signing key from
// scratch.
func GeneratePrivateKeyP256() (*PrivateKeyP256, error) {
	skECDSA, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("P-256/secp256r1 key generation failed: %w", err)
	}
	skECDH, err := skECDSA.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unexpected internal error converting P-256 key from ecdsa to ecdh: %w", err)
	}
	return &PrivateKeyP256{privP256: *skECDSA, privP256ecdh: skECDH}, nil
}

// ParsePrivateBytesP256 loads a [PrivateKeyP256] from raw bytes, as
// exported by the Bytes method. Calling code must remove any string
// encoding (hex, base64, etc) first.
func ParsePrivateBytesP256(data []byte) (*PrivateKeyP256, error) {
	// parse as an ecdh.PrivateKey, then get from that to an
	// ecdsa.PrivateKey by round-tripping through x509 PKCS8 encoding.
	// Note that the 'data' bytes format is *not* x509 PKCS8!
	skECDH, err := ecdh.P256().NewPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("invalid P-256/secp256r1 private key: %w", err)
	}
	enc, err := x509.MarshalPKCS8PrivateKey(skECDH)
	if err != nil {
		return nil, fmt.Errorf("invalid P-256/secp256r1 private key: %w", err)
	}
	sk, err := x509.ParsePKCS8PrivateKey(enc)
	if err != nil {
		return nil, fmt.Errorf("invalid P-256/secp256r1 private key: %w", err)
	}
	skECDSA, ok := sk.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unexpected internal error parsing own private P-256 x509 key")
	}
	return &PrivateKeyP256{privP256: *skECDSA, privP256ecdh: skECDH}, nil
}

// Equal checks if the two private keys are the same. Note that the
// naive == operator does not work for most equality checks.
func (k *PrivateKeyP256) Equal(other PrivateKey) bool {
	otherP256, ok := other.(*PrivateKeyP256)
	if ok {
		return k.privP256.Equal(&otherP256.privP256)
	}
	return false
}

// Bytes serializes the secret key material. For P-256 this is the
// "compact" encoding, 32 bytes long.
func (k *PrivateKeyP256) Bytes() []byte {
	return k.privP256ecdh.Bytes()
}

// Multibase string encoding of the private key, including a multicodec
// prefix.
func (k *PrivateKeyP256) Multibase() string {
	kbytes := k.Bytes()
	kbytes = append([]byte{prefixP256Priv[0], prefixP256Priv[1]}, kbytes...)
	return "z" + base58.Encode(kbytes)
}

// PublicKey returns the corresponding [PublicKeyP256].
func (k *PrivateKeyP256) PublicKey() (PublicKey, error) {
	pkECDSA, ok := k.privP256.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected internal error casting P-256 ecdsa public key")
	}
	return &PublicKeyP256{pubP256: *pkECDSA}, nil
}

// HashAndSign computes the SHA-256 digest of the raw bytes, then signs
// the digest. The resulting signature is the 64-byte `[R | S]`
// encoding, always in the "low-S" form.
func (k *PrivateKeyP256) HashAndSign(content []byte) ([]byte, error) {
	hash := sha256.Sum256(content)
	r, s, err := ecdsa.Sign(rand.Reader, &k.privP256, hash[:])
	if err != nil {
		return nil, fmt.Errorf("crypto error signing with P-256/secp256r1 private key: %w", err)
	}
	s = sigSToLowS_P256(s)
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// ParsePublicBytesP256 loads a [PublicKeyP256] from the "compressed"
// curve format, as exported by the Bytes method.
func ParsePublicBytesP256(data []byte) (*PublicKeyP256, error) {
	curve := elliptic.P256()
	x, y := elliptic.UnmarshalCompressed(curve, data)
	if x == nil {
		return nil, fmt.Errorf("invalid P-256 public key (x==nil)")
	}
	if !curve.Params().IsOnCurve(x, y) {
		return nil, fmt.Errorf("invalid P-256 public key (not on curve)")
	}
	pub := PublicKeyP256{pubP256: ecdsa.PublicKey{Curve: curve, X: x, Y: y}}
	if err := pub.checkCurve(); err != nil {
		return nil, err
	}
	return &pub, nil
}

// ParsePublicUncompressedBytesP256 loads a [PublicKeyP256] from the
// uncompressed curve format, as exported by UncompressedBytes.
func ParsePublicUncompressedBytesP256(data []byte) (*PublicKeyP256, error) {
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, data)
	if x == nil {
		return nil, fmt.Errorf("invalid P-256 public key (x==nil)")
	}
	if !curve.Params().IsOnCurve(x, y) {
		return nil, fmt.Errorf("invalid P-256 public key (not on curve)")
	}
	pub := PublicKeyP256{pubP256: ecdsa.PublicKey{Curve: curve, X: x, Y: y}}
	if err := pub.checkCurve(); err != nil {
		return nil, err
	}
	return &pub, nil
}

// Equal checks if the two public keys are the same. Note that the
// naive == operator does not work for most equality checks.
func (k *PublicKeyP256) Equal(other PublicKey) bool {
	otherP256, ok := other.(*PublicKeyP256)
	if ok {
		return k.pubP256.Equal(&otherP256.pubP256)
	}
	return false
}

func (k *PublicKeyP256) checkCurve() error {
	if !k.pubP256.Curve.IsOnCurve(k.pubP256.X, k.pubP256.Y) {
		return fmt.Errorf("unexpected invalid P-256/secp256r1 public key (internal)")
	}
	return nil
}

// UncompressedBytes serializes the key in "uncompressed" binary format
// (65 bytes).
func (k *PublicKeyP256) UncompressedBytes() []byte {
	return elliptic.Marshal(k.pubP256.Curve, k.pubP256.X, k.pubP256.Y)
}

// Bytes serializes the key in "compressed" binary format (33 bytes).
func (k *PublicKeyP256) Bytes() []byte {
	return elliptic.MarshalCompressed(k.pubP256.Curve, k.pubP256.X, k.pubP256.Y)
}

func parseP256Sig(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != 64 {
		return nil, nil, fmt.Errorf("P-256 signatures must be 64 bytes, got len=%d", len(sig))
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:])
	return r, s, nil
}

// HashAndVerify computes the SHA-256 digest of the raw bytes, then
// verifies the signature against the digest. Requires a "low-S"
// signature.
func (k *PublicKeyP256) HashAndVerify(content, sig []byte) error {
	hash := sha256.Sum256(content)
	r, s, err := parseP256Sig(sig)
	if err != nil {
		return err
	}
	if !ecdsa.Verify(&k.pubP256, hash[:], r, s) {
		return ErrInvalidSignature
	}
	if !sigSIsLowS_P256(s) {
		return ErrInvalidSignature
	}
	return nil
}

// HashAndVerifyLenient is HashAndVerify without the low-S requirement.
func (k *PublicKeyP256) HashAndVerifyLenient(content, sig []byte) error {
	hash := sha256.Sum256(content)
	r, s, err := parseP256Sig(sig)
	if err != nil {
		return err
	}
	if !ecdsa.Verify(&k.pubP256, hash[:], r, s) {
		return ErrInvalidSignature
	}
	return nil
}

// Multibase string encoding of the public key: multicodec prefix plus
// compressed curve bytes, base58btc.
func (k *PublicKeyP256) Multibase() string {
	kbytes := k.Bytes()
	kbytes = append([]byte{prefixP256Pub[0], prefixP256Pub[1]}, kbytes...)
	return "z" + base58.Encode(kbytes)
}

// DIDKey returns the did:key string encoding of the public key.
func (k *PublicKeyP256) DIDKey() string {
	return "did:key:" + k.Multibase()
}
