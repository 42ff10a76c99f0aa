package crypto

import (
	"crypto/elliptic"
	"math/big"
)

var curveN_P256 *big.Int = elliptic.P256().Params().N
var curveHalfOrder_P256 *big.Int = new(big.Int).Rsh(curveN_P256, 1)

// Checks if the 'S' value from a P-256 signature is "low-S".
// un-reviewed, un-safe code from: https://github.com/golang/go/issues/54549
func sigSIsLowS_P256(s *big.Int) bool {
	return s.Cmp(curveHalfOrder_P256) != 1
}

// Maps the 'S' value from a P-256 signature to the "low-S" variant.
// un-reviewed, un-safe code from: https://github.com/golang/go/issues/54549
func sigSToLowS_P256(s *big.Int) *big.Int {
	if !sigSIsLowS_P256(s) {
		// N - s is in the lower half of the signature space
		s.Sub(curveN_P256, s)
		return s
	}
	return s
}
