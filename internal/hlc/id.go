package hlc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// hashLen is the number of hex characters of the content hash kept in an
// event id. Eight characters is collision-resistant for practical event
// volumes; ids are deterministic, not globally unique.
const hashLen = 8

// EventID derives a content-addressed event id from a timestamp and the
// canonical serialization of the event content:
//
//	<physical>-<logical>-<node_id>-<hash8>
//
// where hash8 is the first 8 hex characters of SHA-256(content). Identical
// (timestamp, content) pairs always produce the same id.
func EventID(ts Timestamp, content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%d-%d-%s-%s", ts.Physical, ts.Logical, ts.NodeID,
		hex.EncodeToString(sum[:])[:hashLen])
}

// ParseEventID recovers the timestamp and content hash from an event id.
// The node id may itself contain hyphens, so the physical and logical
// components are read from the front and the hash from the back.
func ParseEventID(id string) (Timestamp, string, error) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 {
		return Timestamp{}, "", fmt.Errorf("%w: event id %q", ErrInvalidFormat, id)
	}
	physical, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Timestamp{}, "", fmt.Errorf("%w: bad physical in event id %q", ErrInvalidFormat, id)
	}
	logical, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Timestamp{}, "", fmt.Errorf("%w: bad logical in event id %q", ErrInvalidFormat, id)
	}
	tail := parts[2]
	cut := strings.LastIndex(tail, "-")
	if cut <= 0 || len(tail)-cut-1 != hashLen {
		return Timestamp{}, "", fmt.Errorf("%w: bad hash suffix in event id %q", ErrInvalidFormat, id)
	}
	ts := Timestamp{Physical: physical, Logical: uint32(logical), NodeID: tail[:cut]}
	return ts, tail[cut+1:], nil
}
