package syntax

import (
	"encoding/base32"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Alphabet used for the sortable base32 encoding of TIDs ("base32-sortable").
const base32SortCharset = "234567abcdefghijklmnopqrstuvwxyz"

func base32Sort() *base32.Encoding {
	return base32.NewEncoding(base32SortCharset).WithPadding(base32.NoPadding)
}

// TID is a compact, timestamp-based identifier, used as a record key and as
// a repository revision number. The string form is 13 characters of
// base32-sortable, so lexicographic order matches creation order.
//
// Use [ParseTID] when working with untrusted input, rather than casting
// strings directly.
type TID string

var tidRegex = regexp.MustCompile(`^[234567abcdefghij][234567abcdefghijklmnopqrstuvwxyz]{12}$`)

func ParseTID(raw string) (TID, error) {
	if raw == "" {
		return "", errors.New("expected TID, got empty string")
	}
	if len(raw) != 13 {
		return "", fmt.Errorf("TID must be 13 chars, got %d", len(raw))
	}
	if !tidRegex.MatchString(raw) {
		return "", errors.New("TID syntax didn't validate via regex")
	}
	return TID(raw), nil
}

// NewTID packs a microsecond UNIX timestamp and a 10-bit clock identifier
// in to a TID. The top bit is always zero.
func NewTID(unixMicros int64, clockID uint) TID {
	v := (uint64(unixMicros&0x1F_FFFF_FFFF_FFFF) << 10) | uint64(clockID&0x3FF)
	return tidFromInteger(v)
}

// NewTIDFromTime is like [NewTID] but takes a [time.Time].
func NewTIDFromTime(ts time.Time, clockID uint) TID {
	return NewTID(ts.UTC().UnixMicro(), clockID)
}

// NewTIDNow generates a one-off TID from the current time.
//
// This does not protect against clock skew or rapid successive calls; use a
// [TIDClock] when generating revision numbers for a repository.
func NewTIDNow(clockID uint) TID {
	return NewTID(time.Now().UTC().UnixMicro(), clockID)
}

func tidFromInteger(v uint64) TID {
	v &= 0x7FFF_FFFF_FFFF_FFFF
	var sb strings.Builder
	sb.Grow(13)
	for shift := 60; shift >= 0; shift -= 5 {
		sb.WriteByte(base32SortCharset[(v>>uint(shift))&0x1F])
	}
	return TID(sb.String())
}

// Integer returns the packed 64-bit representation of this TID, or zero if
// the TID is malformed.
func (t TID) Integer() uint64 {
	if len(t) != 13 {
		return 0
	}
	var v uint64
	for i := 0; i < 13; i++ {
		c := strings.IndexByte(base32SortCharset, t[i])
		if c < 0 {
			return 0
		}
		v = (v << 5) | uint64(c)
	}
	return v
}

// Time returns the timestamp component as a [time.Time] (UTC).
func (t TID) Time() time.Time {
	micros := int64((t.Integer() >> 10) & 0x1FFF_FFFF_FFFF_FFFF)
	return time.UnixMicro(micros).UTC()
}

// ClockID returns the 10-bit clock identifier component.
func (t TID) ClockID() uint {
	return uint(t.Integer() & 0x3FF)
}

func (t TID) String() string {
	return string(t)
}

func (t TID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TID) UnmarshalText(text []byte) error {
	tid, err := ParseTID(string(text))
	if err != nil {
		return err
	}
	*t = tid
	return nil
}

// TIDClock generates TIDs which strictly increase, even under rapid
// successive calls or backwards jumps of the wall clock. Safe for
// concurrent use.
type TIDClock struct {
	clockID uint

	mtx           sync.Mutex
	lastUnixMicro int64
}

// NewTIDClock creates a generator with the given 10-bit clock identifier.
func NewTIDClock(clockID uint) *TIDClock {
	return &TIDClock{clockID: clockID & 0x3FF}
}

// NewRandomTIDClock creates a generator with a randomized clock identifier,
// to reduce the chance of collision between uncoordinated devices.
func NewRandomTIDClock() *TIDClock {
	return NewTIDClock(uint(rand.Intn(1 << 10)))
}

// ClockFromTID resumes a generator such that every subsequent TID sorts
// after the given one. Used when loading a repository at an existing rev.
func ClockFromTID(t TID) *TIDClock {
	return &TIDClock{
		clockID:       t.ClockID(),
		lastUnixMicro: int64((t.Integer() >> 10) & 0x1FFF_FFFF_FFFF_FFFF),
	}
}

// Next returns a fresh TID, clamping to one microsecond past the previous
// value if the wall clock has not advanced (or has gone backwards).
func (c *TIDClock) Next() TID {
	now := time.Now().UTC().UnixMicro()
	c.mtx.Lock()
	if now <= c.lastUnixMicro {
		now = c.lastUnixMicro + 1
	}
	c.lastUnixMicro = now
	c.mtx.Unlock()
	return NewTID(now, c.clockID)
}
