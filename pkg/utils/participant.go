package utils

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxParticipantIDLength bounds ids accepted from clients.
const MaxParticipantIDLength = 128

var participantIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]+$`)

// ParticipantID trims a client-supplied participant id and reports whether
// it is acceptable. The empty id is accepted and stands for the anonymous
// participant.
func ParticipantID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", true
	}
	if len(id) > MaxParticipantIDLength || !participantIDPattern.MatchString(id) {
		return id, false
	}
	return id, true
}

// NewRequestID returns a random id for correlating one request's logs.
func NewRequestID() string {
	return uuid.NewString()
}

// ValidRequestID reports whether a client-supplied request id can be reused.
func ValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	return participantIDPattern.MatchString(id)
}
