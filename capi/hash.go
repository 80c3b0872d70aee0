package capi

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// UserData holds hashed customer identifiers in the shape Meta expects.
type UserData struct {
	Phones []string `json:"ph,omitempty"`
	Emails []string `json:"em,omitempty"`
}

// Empty reports whether no identifier is set.
func (u UserData) Empty() bool {
	return len(u.Phones) == 0 && len(u.Emails) == 0
}

// NormalizePhone keeps only the digits of phone.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HashIdentifier returns the hex SHA-256 of the trimmed, lower-cased value.
func HashIdentifier(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])
}

// NewUserData hashes the given phone and email. Blank identifiers are
// omitted; raw values never leave this function.
func NewUserData(phone, email string) UserData {
	var ud UserData
	if p := NormalizePhone(phone); p != "" {
		ud.Phones = []string{HashIdentifier(p)}
	}
	if e := strings.TrimSpace(email); e != "" {
		ud.Emails = []string{HashIdentifier(e)}
	}
	return ud
}
