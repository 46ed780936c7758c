package claimsx

import "testing"

func validIdentity() Identity {
	return Identity{
		"email":            "jane.doe@austintexas.gov",
		"cognito:username": "5f0e-uuid",
		"email_verified":   true,
		"aud":              testClientID,
		HasuraClaimsKey:    `{"x-hasura-allowed-roles":["moped-viewer"]}`,
	}
}

func TestIsValidUser(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(Identity)
		want   bool
	}{
		{"verified staff", func(Identity) {}, true},
		{"verified flag as string", func(i Identity) { i["email_verified"] = "true" }, true},
		{"mixed case domain", func(i Identity) { i["email"] = "Jane.Doe@AustinTexas.gov" }, true},
		{"unverified", func(i Identity) { i["email_verified"] = false }, false},
		{"unverified string", func(i Identity) { i["email_verified"] = "false" }, false},
		{"unverified federated", func(i Identity) {
			i["email_verified"] = false
			i["cognito:username"] = "azuread_jane.doe@austintexas.gov"
		}, true},
		{"federated outside domain", func(i Identity) {
			i["email_verified"] = false
			i["cognito:username"] = "azuread_jane@example.com"
			i["email"] = "jane@example.com"
		}, false},
		{"outside domain", func(i Identity) { i["email"] = "jane@example.com" }, false},
		{"domain in the middle", func(i Identity) { i["email"] = "jane@austintexas.gov.evil.com" }, false},
		{"missing email", func(i Identity) { delete(i, "email") }, false},
		{"empty username", func(i Identity) { i["cognito:username"] = "" }, false},
		{"missing claims", func(i Identity) { delete(i, HasuraClaimsKey) }, false},
		{"missing verified flag", func(i Identity) { delete(i, "email_verified") }, false},
		{"unreadable verified flag", func(i Identity) { i["email_verified"] = 1 }, false},
		{"missing audience", func(i Identity) { delete(i, "aud") }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := validIdentity()
			tc.mutate(id)
			if got := IsValidUser(id); got != tc.want {
				t.Fatalf("IsValidUser = %v, want %v", got, tc.want)
			}
			result := ValidateUser(id)
			if result.OK() != tc.want {
				t.Fatalf("ValidateUser ok = %v, want %v", result.OK(), tc.want)
			}
			if !tc.want && result.Code() != ErrCodeInvalidUser {
				t.Fatalf("unexpected code %s", result.Code())
			}
		})
	}
}

func TestIsValidUserNeverPanics(t *testing.T) {
	for _, id := range []Identity{nil, {}, {"email": 42, "aud": []any{}, HasuraClaimsKey: 3.5}} {
		if IsValidUser(id) {
			t.Fatalf("unexpected valid user: %v", id)
		}
	}
}

func TestIsCOAStaff(t *testing.T) {
	cases := map[string]bool{
		"jane.doe@austintexas.gov":  true,
		"JANE.DOE@AUSTINTEXAS.GOV":  true,
		" jane@austintexas.gov ":    true,
		"jane@austin.gov":           false,
		"jane@notaustintexas.gov.x": false,
		"":                          false,
	}
	for email, want := range cases {
		if got := IsCOAStaff(email); got != want {
			t.Fatalf("IsCOAStaff(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestHasUserRole(t *testing.T) {
	claims := map[string]any{
		HasuraClaimsKey: map[string]any{
			"x-hasura-allowed-roles": []any{"user", "admin"},
		},
	}
	if !HasUserRole("user", claims) {
		t.Fatal("expected user role")
	}
	if HasUserRole("hacker", claims) {
		t.Fatal("unexpected hacker role")
	}

	encoded := map[string]any{HasuraClaimsKey: `{"x-hasura-allowed-roles":["moped-admin"]}`}
	if !HasUserRole("moped-admin", encoded) {
		t.Fatal("expected role from JSON-encoded claims")
	}

	for name, input := range map[string]map[string]any{
		"nil":          nil,
		"no claims":    {"email": "a@austintexas.gov"},
		"no roles":     {HasuraClaimsKey: map[string]any{}},
		"roles string": {HasuraClaimsKey: map[string]any{"x-hasura-allowed-roles": "user"}},
		"bad json":     {HasuraClaimsKey: "{"},
	} {
		if HasUserRole("user", input) {
			t.Fatalf("%s: expected false", name)
		}
	}

	if r := RequireRole("admin", claims); !r.OK() || r.Value() != "admin" {
		t.Fatalf("RequireRole admin: %+v", r)
	}
	if r := RequireRole("hacker", claims); r.OK() || r.Code() != ErrCodeInvalidUser {
		t.Fatalf("RequireRole hacker: %+v", r)
	}
}

func TestCustomUserPolicy(t *testing.T) {
	policy := UserPolicy{Domain: "@example.org", FederatedPrefix: "okta_"}
	id := validIdentity()
	id["email"] = "ops@example.org"
	id["email_verified"] = false
	id["cognito:username"] = "okta_ops"
	if !policy.IsValidUser(id) {
		t.Fatal("expected federated user on custom domain to be valid")
	}
	if IsValidUser(id) {
		t.Fatal("default policy must reject other domains")
	}
}
