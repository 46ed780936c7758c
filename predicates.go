package claimsx

import "strings"

const (
	// OrganizationDomain is the email suffix of platform users.
	OrganizationDomain = "@austintexas.gov"
	// FederatedUsernamePrefix marks users signed in through Azure AD.
	FederatedUsernamePrefix = "azuread_"

	allowedRolesKey = "x-hasura-allowed-roles"
)

// UserPolicy decides who is a valid platform user.
type UserPolicy struct {
	Domain          string
	FederatedPrefix string
}

// DefaultUserPolicy is the City of Austin policy.
var DefaultUserPolicy = UserPolicy{
	Domain:          OrganizationDomain,
	FederatedPrefix: FederatedUsernamePrefix,
}

// ValidateUser checks the identity's required fields and domain. Federated
// usernames on the organization domain count as verified even when the
// email_verified flag is false. Failures carry ErrCodeInvalidUser.
func (p UserPolicy) ValidateUser(id Identity) Result[Identity] {
	for _, key := range []string{claimEmail, claimUsername, HasuraClaimsKey, claimAudience} {
		if !id.present(key) {
			return Fail[Identity](ErrCodeInvalidUser)
		}
	}
	verified, ok := id.EmailVerified()
	if !ok {
		return Fail[Identity](ErrCodeInvalidUser)
	}
	if !p.inDomain(id.Email()) {
		return Fail[Identity](ErrCodeInvalidUser)
	}
	if !verified && !strings.HasPrefix(id.Username(), p.FederatedPrefix) {
		return Fail[Identity](ErrCodeInvalidUser)
	}
	return Ok(id)
}

// IsValidUser reports whether id is a valid platform user.
func (p UserPolicy) IsValidUser(id Identity) bool {
	return p.ValidateUser(id).OK()
}

// IsStaff reports whether email is on the organization domain.
func (p UserPolicy) IsStaff(email string) bool {
	return p.inDomain(email)
}

func (p UserPolicy) inDomain(email string) bool {
	if p.Domain == "" || email == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), strings.ToLower(p.Domain))
}

// ValidateUser applies DefaultUserPolicy.
func ValidateUser(id Identity) Result[Identity] {
	return DefaultUserPolicy.ValidateUser(id)
}

// IsValidUser applies DefaultUserPolicy.
func IsValidUser(id Identity) bool {
	return DefaultUserPolicy.IsValidUser(id)
}

// IsCOAStaff reports whether email belongs to a City of Austin account.
func IsCOAStaff(email string) bool {
	return DefaultUserPolicy.IsStaff(email)
}

// HasUserRole reports whether the claims embedded in userClaims allow role.
// Absent or malformed claims yield false.
func HasUserRole(role string, userClaims map[string]any) bool {
	embedded, ok := Identity(userClaims).EmbeddedClaims()
	if !ok {
		return false
	}
	for _, r := range stringList(embedded[allowedRolesKey]) {
		if r == role {
			return true
		}
	}
	return false
}

// RequireRole is HasUserRole as a Result, for callers that branch on codes.
func RequireRole(role string, userClaims map[string]any) Result[string] {
	if !HasUserRole(role, userClaims) {
		return Fail[string](ErrCodeInvalidUser)
	}
	return Ok(role)
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
