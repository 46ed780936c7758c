package claimsx

// DevIdentity holds attributes used when synthesizing a caller in local development.
type DevIdentity struct {
	Subject  string
	Email    string
	Audience string
	Roles    []string
}

// ToCaller converts the dev identity into a caller that passes IsValidUser.
func (d DevIdentity) ToCaller() Caller {
	doc := NewClaimsDocument(d.Subject, d.Roles, 0, 0)
	id := Identity{
		claimSubject:       d.Subject,
		claimEmail:         d.Email,
		claimUsername:      d.Subject,
		claimEmailVerified: true,
		claimAudience:      d.Audience,
		HasuraClaimsKey: map[string]any{
			"x-hasura-user-id":      doc.UserID,
			"x-hasura-default-role": doc.DefaultRole,
			allowedRolesKey:         toAnySlice(doc.AllowedRoles),
			"x-hasura-user-db-id":   doc.DatabaseID,
			"x-hasura-user-wg-id":   doc.WorkgroupID,
		},
	}
	return Caller{Identity: id, DevBypass: true}
}

// DefaultDevIdentity returns a baseline identity suitable for local development.
func DefaultDevIdentity(audience string) DevIdentity {
	aud := audience
	if aud == "" {
		aud = "local-dev-client"
	}
	return DevIdentity{
		Subject:  "00000000-0000-0000-0000-000000000000",
		Email:    "moped-dev" + OrganizationDomain,
		Audience: aud,
		Roles:    []string{"moped-viewer"},
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
