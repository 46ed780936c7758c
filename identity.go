package claimsx

import (
	"encoding/json"
	"strings"
)

const (
	claimEmail         = "email"
	claimUsername      = "cognito:username"
	claimEmailVerified = "email_verified"
	claimAudience      = "aud"
	claimSubject       = "sub"
)

// Identity is a decoded identity-token payload. It is only ever inspected.
type Identity map[string]any

// Email returns the email claim.
func (i Identity) Email() string {
	return i.str(claimEmail)
}

// Username returns the Cognito username claim.
func (i Identity) Username() string {
	return i.str(claimUsername)
}

// Subject returns the sub claim, the user's Cognito UUID.
func (i Identity) Subject() string {
	return i.str(claimSubject)
}

// Audience returns the first audience value.
func (i Identity) Audience() string {
	switch v := i[claimAudience].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

// EmailVerified returns the verified flag and whether it was present and
// readable. Cognito sends either a JSON boolean or the strings "true"/"false".
func (i Identity) EmailVerified() (verified, present bool) {
	switch v := i[claimEmailVerified].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// EmbeddedClaims decodes the namespaced claims, which arrive either as an
// object or as a JSON string. ok is false when absent or malformed.
func (i Identity) EmbeddedClaims() (map[string]any, bool) {
	switch v := i[HasuraClaimsKey].(type) {
	case map[string]any:
		return v, true
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil || m == nil {
			return nil, false
		}
		return m, true
	}
	return nil, false
}

func (i Identity) str(key string) string {
	s, _ := i[key].(string)
	return s
}

// present reports whether key holds a truthy value.
func (i Identity) present(key string) bool {
	switch v := i[key].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	default:
		return true
	}
}
