package engine

import (
	"strings"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
)

// QOS is the delivery guarantee of a subscription or send.
type QOS uint8

const (
	// AtMostOnce delivers without acknowledgement; messages may be lost.
	AtMostOnce QOS = 0

	// AtLeastOnce delivers with acknowledgement; messages may be redelivered.
	AtLeastOnce QOS = 1
)

// String returns the QOS name.
func (q QOS) String() string {
	switch q {
	case AtMostOnce:
		return "AT_MOST_ONCE"
	case AtLeastOnce:
		return "AT_LEAST_ONCE"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether q is a known delivery guarantee.
func (q QOS) IsValid() bool {
	return q == AtMostOnce || q == AtLeastOnce
}

// ParseQOS parses a QOS name or its number ("0", "1"). Case and the
// separator ("-" or "_") are ignored.
func ParseQOS(s string) (QOS, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "AT_MOST_ONCE", "0":
		return AtMostOnce, nil
	case "AT_LEAST_ONCE", "1":
		return AtLeastOnce, nil
	default:
		return 0, clienterr.Validation("unknown qos %q", s)
	}
}
