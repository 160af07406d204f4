package extract

import "strings"

// MinTokenLength is the shortest token or device id accepted as well-formed.
const MinTokenLength = 20

// Identity is a (possibly partial) set of extracted credentials.
type Identity struct {
	AuthToken string `json:"authToken"`
	DeviceID  string `json:"deviceId"`
	Email     string `json:"email"`
}

// Usable reports whether the identity carries a token.
func (i Identity) Usable() bool {
	return i.AuthToken != ""
}

// Complete reports whether every field is populated.
func (i Identity) Complete() bool {
	return i.AuthToken != "" && i.DeviceID != "" && i.Email != ""
}

// Merge folds partials in order; for each field the first non-empty value
// wins and later partials never overwrite it.
func Merge(parts ...Identity) Identity {
	var out Identity
	for _, p := range parts {
		if out.AuthToken == "" {
			out.AuthToken = p.AuthToken
		}
		if out.DeviceID == "" {
			out.DeviceID = p.DeviceID
		}
		if out.Email == "" {
			out.Email = p.Email
		}
	}
	return out
}

// WellFormed reports whether s looks like a token or device id: at least
// MinTokenLength characters, all ASCII letters, digits or hyphens.
func WellFormed(s string) bool {
	if len(s) < MinTokenLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// Sanitize drops malformed tokens and device ids, treating them as absent,
// and trims the email.
func Sanitize(i Identity) Identity {
	if !WellFormed(i.AuthToken) {
		i.AuthToken = ""
	}
	if !WellFormed(i.DeviceID) {
		i.DeviceID = ""
	}
	i.Email = strings.TrimSpace(i.Email)
	if strings.ContainsAny(i.Email, " \t\r\n") || !strings.Contains(i.Email, "@") {
		i.Email = ""
	}
	return i
}
