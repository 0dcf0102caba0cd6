package usage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const unknownIP = "unknown"

// Subject identifies who spends free-tier quota. Exactly one of UserID or
// IPHash is set.
type Subject struct {
	UserID string
	IPHash string
}

// UserSubject identifies a signed-in user.
func UserSubject(userID string) Subject {
	return Subject{UserID: strings.TrimSpace(userID)}
}

// GuestSubject identifies an anonymous caller by a salted hash of their IP.
func GuestSubject(ip, salt string) Subject {
	return Subject{IPHash: HashIP(ip, salt)}
}

// IsGuest reports whether the subject is an IP hash.
func (s Subject) IsGuest() bool {
	return s.UserID == ""
}

// Key renders the subject for logs; guest hashes are truncated.
func (s Subject) Key() string {
	if !s.IsGuest() {
		return "user:" + s.UserID
	}
	hash := s.IPHash
	if len(hash) > 8 {
		hash = hash[:8] + "..."
	}
	return "ip:" + hash
}

// HashIP returns hex(sha256(ip + salt)); raw addresses are never stored.
func HashIP(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])
}

// ClientIP picks the best-available client address from proxy headers.
func ClientIP(h http.Header) string {
	if forwarded := h.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(h.Get("X-Real-IP")); real != "" {
		return real
	}
	if cf := strings.TrimSpace(h.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	return unknownIP
}

// ResolveSubject prefers the session user, then an explicit userId, then the
// hashed client IP.
func ResolveSubject(sessionUserID, userIDParam string, h http.Header, salt string) Subject {
	if id := strings.TrimSpace(sessionUserID); id != "" {
		return UserSubject(id)
	}
	if id := strings.TrimSpace(userIDParam); id != "" {
		return UserSubject(id)
	}
	return GuestSubject(ClientIP(h), salt)
}
