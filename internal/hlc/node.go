package hlc

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const nodeIDLen = 16

var (
	nodeOnce sync.Once
	nodeID   string
)

// NodeID returns this process's node identifier: hostname plus process id
// plus random entropy, truncated to 16 characters. It is generated once and
// cached for the lifetime of the process, so every Clock and every event id
// derived in this process carries the same identity.
func NodeID() string {
	nodeOnce.Do(func() {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "node"
		}
		// Strip separators that would collide with the wire form.
		host = strings.Map(func(r rune) rune {
			if r == '@' || r == '.' {
				return '-'
			}
			return r
		}, host)

		entropy := uuid.NewString()[:8]
		id := fmt.Sprintf("%s-%d-%s", host, os.Getpid(), entropy)
		if len(id) > nodeIDLen {
			id = id[:nodeIDLen]
		}
		nodeID = id
	})
	return nodeID
}
