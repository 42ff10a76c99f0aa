package mst

import (
	"crypto/sha256"
)

// HeightForKey computes the tree height for a key (bytestring), counting
// layers from the bottom of the tree starting at zero.
//
// Uses SHA-256 as the hash function and counts leading zero bits two at
// a time, giving the tree a fanout of 16.
func HeightForKey(key []byte) (height int) {
	hv := sha256.Sum256(key)
	for _, b := range hv {
		if b&0xC0 != 0 {
			// common case: no leading pair of zero bits
			break
		}
		if b == 0x00 {
			height += 4
			continue
		}
		if b&0xFC == 0x00 {
			height += 3
		} else if b&0xF0 == 0x00 {
			height += 2
		} else {
			height += 1
		}
		break
	}
	return height
}

// CountPrefixLen returns the length of the common prefix of two keys.
func CountPrefixLen(a, b []byte) int {
	// this loop shape lets the compiler prove a[i] and b[i] in bounds
	var i int
	for i = 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return i
}

// IsValidKey checks a bytestring against the key restrictions: 1 to 256
// bytes of [A-Za-z0-9_:.-] path segments separated by '/'.
func IsValidKey(key []byte) bool {
	if len(key) == 0 || len(key) > 256 {
		return false
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		if 'a' <= b && b <= 'z' ||
			'A' <= b && b <= 'Z' ||
			'0' <= b && b <= '9' {
			continue
		}
		switch b {
		case '_', ':', '.', '-', '/':
			continue
		default:
			return false
		}
	}
	return true
}
