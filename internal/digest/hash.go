package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/inboxdigest/internal/mailbox"
)

// Recent returns the messages whose timestamp lies within window before now.
// The boundary is inclusive: a message exactly window old is recent.
func Recent(now time.Time, messages []mailbox.RawMessage, window time.Duration) []mailbox.RawMessage {
	var out []mailbox.RawMessage
	for _, m := range messages {
		if now.Sub(m.Timestamp) <= window {
			out = append(out, m)
		}
	}
	return out
}

// Fingerprint returns the hex SHA-256 of "id:unixms" entries joined by "|",
// taken over messages sorted by ID. The result is independent of input order.
func Fingerprint(messages []mailbox.RawMessage) string {
	entries := make([]string, 0, len(messages))
	sorted := make([]mailbox.RawMessage, len(messages))
	copy(sorted, messages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, m := range sorted {
		entries = append(entries, m.ID+":"+strconv.FormatInt(m.Timestamp.UnixMilli(), 10))
	}

	sum := sha256.Sum256([]byte(strings.Join(entries, "|")))
	return hex.EncodeToString(sum[:])
}
