package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// GenerateTicketID returns a random UUIDv4. The id doubles as the QR payload, so it must
// not be guessable.
func GenerateTicketID() string {
	return uuid.NewString()
}

// GenerateSessionToken returns 32 random bytes encoded as unpadded base64url.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateEventID derives a readable id from an event name with a short random suffix,
// e.g. "spring-formal-3f9a1c".
func GenerateEventID(name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	if slug == "" {
		return "evt-" + suffix
	}
	return slug + "-" + suffix
}
