package domain

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// NewIdempotencyKey derives a stable identifier from (userID, eventType,
// targetTimestampUTC) per spec §4.2/GLOSSARY. The key must be identical
// across repeated generation attempts and across recovery, so it is a
// pure hash of its inputs with no random component: the full hex-encoded
// SHA-256 digest of the three values.
func NewIdempotencyKey(userID string, eventType EventType, targetUTC time.Time) IdempotencyKey {
	input := fmt.Sprintf("%s|%s|%s", userID, eventType, targetUTC.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(input))
	return IdempotencyKey(fmt.Sprintf("%x", sum))
}
