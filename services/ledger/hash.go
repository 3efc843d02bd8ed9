package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
)

// GenesisHash is the previous hash of the first event in the chain
var GenesisHash = strings.Repeat("0", sha256.Size*2)

const fieldSeparator = "\x1f"

// CanonicalTime normalizes a timestamp to the precision that survives a
// round-trip through TIMESTAMPTZ
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHash returns the hex SHA-256 over
// prev 0x1F actor 0x1F action 0x1F target 0x1F timestamp
func ComputeHash(prevHash, actorRef string, action models.AuditAction, target string, ts time.Time) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(fieldSeparator))
	h.Write([]byte(actorRef))
	h.Write([]byte(fieldSeparator))
	h.Write([]byte(action))
	h.Write([]byte(fieldSeparator))
	h.Write([]byte(target))
	h.Write([]byte(fieldSeparator))
	h.Write([]byte(CanonicalTime(ts).Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashEvent recomputes the hash of event chained onto prevHash
func HashEvent(prevHash string, event *models.AuditEvent) string {
	return ComputeHash(prevHash, event.ActorRef, event.Action, event.Target, event.Timestamp)
}
