package extract

import "strings"

// Keys lists candidate storage names per field, most specific first.
type Keys struct {
	Token  []string `json:"token"`
	Device []string `json:"device"`
	Email  []string `json:"email"`
}

var DefaultKeys = Keys{
	Token:  []string{"auth_token", "authToken", "access_token", "accessToken", "token", "jwt"},
	Device: []string{"device_id", "deviceId", "deviceID", "device_uuid", "uuid"},
	Email:  []string{"email", "user_email", "userEmail", "login"},
}

// FromCookies builds a partial identity from a direct cookie read.
func FromCookies(cookies map[string]string, keys Keys) Identity {
	pick := func(names []string) string {
		for _, n := range names {
			if v := strings.TrimSpace(cookies[n]); v != "" {
				return v
			}
		}
		return ""
	}
	return Identity{
		AuthToken: pick(keys.Token),
		DeviceID:  pick(keys.Device),
		Email:     pick(keys.Email),
	}
}
