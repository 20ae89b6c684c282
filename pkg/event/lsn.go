package event

import (
	"fmt"
	"strconv"
	"strings"
)

// LSN is a Postgres Log Sequence Number: an opaque 64-bit WAL offset.
// Its canonical text form is two 32-bit halves separated by a slash,
// e.g. "16/B374D848". Comparisons are numeric on the underlying uint64.
type LSN uint64

func (lsn LSN) String() string {
	return fmt.Sprintf("%X/%X", uint32(lsn>>32), uint32(lsn))
}

// ParseLSN parses the canonical "X/Y" text form.
func ParseLSN(s string) (LSN, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("event: malformed LSN %q", s)
	}
	hi, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("event: malformed LSN %q: %w", s, err)
	}
	lo, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("event: malformed LSN %q: %w", s, err)
	}
	return LSN(hi<<32 | lo), nil
}

// PgEpochMicros converts a Unix-epoch microsecond timestamp into the
// microseconds-since-2000-01-01 form the replication protocol uses for
// standby status updates and keepalive replies.
func PgEpochMicros(unixMicros int64) int64 {
	const pgEpochOffsetSeconds = 946684800
	return unixMicros - pgEpochOffsetSeconds*1_000_000
}
