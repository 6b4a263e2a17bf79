package hlc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Comparison results, in the convention of the standard library's cmp.
const (
	Lower   = -1
	Equal   = 0
	Greater = 1
)

// timeLayout renders the physical component as ISO-8601 UTC with
// millisecond precision. The textual form must round-trip exactly; see
// Timestamp.String and Parse.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrInvalidFormat is returned by Parse when the input does not match the
// "<ISO-8601>.<logical>@<node_id>" wire form.
var ErrInvalidFormat = errors.New("hlc: invalid timestamp format")

// Timestamp is a hybrid logical clock reading.
//
// Physical is milliseconds since the Unix epoch, Logical breaks ties within
// a single millisecond, and NodeID identifies the stamping node and serves
// as the final ordering tie-break.
type Timestamp struct {
	Physical uint64 `json:"physical" yaml:"physical"`
	Logical  uint32 `json:"logical" yaml:"logical"`
	NodeID   string `json:"node_id" yaml:"node_id"`
}

// Compare orders two timestamps lexicographically on
// (Physical, Logical, NodeID). The result is a total order: any two
// distinct timestamps from distinct stampings compare unequal.
func Compare(a, b Timestamp) int {
	if a.Physical < b.Physical {
		return Lower
	}
	if a.Physical > b.Physical {
		return Greater
	}
	if a.Logical < b.Logical {
		return Lower
	}
	if a.Logical > b.Logical {
		return Greater
	}
	if a.NodeID < b.NodeID {
		return Lower
	}
	if a.NodeID > b.NodeID {
		return Greater
	}
	return Equal
}

// Before reports whether t orders strictly before other.
func (t Timestamp) Before(other Timestamp) bool { return Compare(t, other) == Lower }

// After reports whether t orders strictly after other.
func (t Timestamp) After(other Timestamp) bool { return Compare(t, other) == Greater }

// Equal reports whether t and other are the same stamping.
func (t Timestamp) Equal(other Timestamp) bool { return Compare(t, other) == Equal }

// UnixTime returns the physical component as a time.Time in UTC.
func (t Timestamp) UnixTime() time.Time {
	return time.UnixMilli(int64(t.Physical)).UTC()
}

// String renders the wire form "<ISO-8601 UTC>.<logical>@<node_id>".
// The form is stable bit-for-bit for millisecond-resolution timestamps and
// is parsed back by Parse.
func (t Timestamp) String() string {
	return fmt.Sprintf("%s.%d@%s", t.UnixTime().Format(timeLayout), t.Logical, t.NodeID)
}

// Parse decodes the wire form produced by String. It returns
// ErrInvalidFormat (wrapped with detail) on malformed input and never
// produces a partial timestamp.
func Parse(s string) (Timestamp, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 || at == len(s)-1 {
		return Timestamp{}, fmt.Errorf("%w: missing node id in %q", ErrInvalidFormat, s)
	}
	nodeID := s[at+1:]
	rest := s[:at]

	// The ISO part itself contains a dot before the millisecond fraction,
	// so the logical counter is everything after the last dot.
	dot := strings.LastIndex(rest, ".")
	if dot < 0 || dot == len(rest)-1 {
		return Timestamp{}, fmt.Errorf("%w: missing logical counter in %q", ErrInvalidFormat, s)
	}
	logical, err := strconv.ParseUint(rest[dot+1:], 10, 32)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: bad logical counter %q", ErrInvalidFormat, rest[dot+1:])
	}

	wall, err := time.Parse(timeLayout, rest[:dot])
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: bad physical time %q", ErrInvalidFormat, rest[:dot])
	}
	ms := wall.UnixMilli()
	if ms < 0 {
		return Timestamp{}, fmt.Errorf("%w: physical time before epoch in %q", ErrInvalidFormat, s)
	}

	return Timestamp{Physical: uint64(ms), Logical: uint32(logical), NodeID: nodeID}, nil
}
