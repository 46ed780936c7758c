package claimsx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const testARN = "arn:aws:execute-api:us-east-1:123456789012:abcdef"

const testTable = `
permissions:
  - stage: prod
    verb: GET
    resource: projects
    scope: moped/read
  - stage: prod
    verb: POST
    resource: projects
    scope: moped/write
  - arn: arn:aws:execute-api:us-east-1:123456789012:other
    scope: moped-admin
`

func allowed(claims TokenClaims) Verification {
	return Verification{Result: Ok(claims), Stage: StageValid}
}

func mustTable(t *testing.T) *PolicyTable {
	t.Helper()
	table, err := ParsePolicyTable([]byte(testTable), testARN)
	if err != nil {
		t.Fatalf("ParsePolicyTable: %v", err)
	}
	return table
}

func TestGenerate_NoMatchDeniesAll(t *testing.T) {
	policy := mustTable(t).Generate(allowed(TokenClaims{"sub": "svc", "scope": "moped/none"}))

	if policy.PrincipalID != "svc" {
		t.Fatalf("principal = %s", policy.PrincipalID)
	}
	stmts := policy.PolicyDocument.Statement
	if len(stmts) != 1 {
		t.Fatalf("expected one statement, got %d", len(stmts))
	}
	if stmts[0].Effect != "Deny" || stmts[0].Resource != "*/*/*/*/" || stmts[0].Action != "execute-api:Invoke" {
		t.Fatalf("unexpected deny statement: %+v", stmts[0])
	}
	if policy.PolicyDocument.Version != "2012-10-17" {
		t.Fatalf("version = %s", policy.PolicyDocument.Version)
	}
}

func TestGenerate_OneMatch(t *testing.T) {
	policy := mustTable(t).Generate(allowed(TokenClaims{"sub": "svc", "scope": "moped/read openid"}))

	stmts := policy.PolicyDocument.Statement
	if len(stmts) != 1 {
		t.Fatalf("expected one statement, got %+v", stmts)
	}
	want := testARN + "/prod/GET/projects/"
	if stmts[0].Effect != "Allow" || stmts[0].Resource != want {
		t.Fatalf("unexpected statement: %+v", stmts[0])
	}
}

func TestGenerate_ScopesAndGroups(t *testing.T) {
	policy := mustTable(t).Generate(allowed(TokenClaims{
		"cognito:username": "jane",
		"scope":            "moped/read moped/write",
		"cognito:groups":   []any{"moped-admin"},
	}))

	stmts := policy.PolicyDocument.Statement
	if len(stmts) != 3 {
		t.Fatalf("expected three statements, got %+v", stmts)
	}
	if stmts[2].Resource != "arn:aws:execute-api:us-east-1:123456789012:other/*/*/*/" {
		t.Fatalf("unexpected admin resource: %s", stmts[2].Resource)
	}
	if policy.PrincipalID != "jane" {
		t.Fatalf("principal = %s", policy.PrincipalID)
	}
}

func TestGenerate_FailedVerification(t *testing.T) {
	failed := Verification{Result: Fail[TokenClaims](ErrCodeExpired), Stage: StageExpiry}
	policy := mustTable(t).Generate(failed)
	if policy.PrincipalID != "unknown" {
		t.Fatalf("principal = %s", policy.PrincipalID)
	}
	if len(policy.PolicyDocument.Statement) != 1 || policy.PolicyDocument.Statement[0].Effect != "Deny" {
		t.Fatalf("expected deny-all, got %+v", policy.PolicyDocument.Statement)
	}
}

func TestGenerate_NilTable(t *testing.T) {
	var table *PolicyTable
	policy := table.Generate(allowed(TokenClaims{"sub": "svc", "scope": "moped/read"}))
	if policy.PolicyDocument.Statement[0].Effect != "Deny" {
		t.Fatalf("expected deny, got %+v", policy)
	}
}

func TestAuthPolicyJSONShape(t *testing.T) {
	policy := mustTable(t).Generate(allowed(TokenClaims{"sub": "svc", "scope": "moped/read"}))
	raw, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc, ok := decoded["policyDocument"].(map[string]any)
	if !ok || decoded["principalId"] != "svc" {
		t.Fatalf("unexpected shape: %s", raw)
	}
	if _, ok := doc["Statement"].([]any); !ok || doc["Version"] != "2012-10-17" {
		t.Fatalf("unexpected policy document: %s", raw)
	}
}

func TestParsePolicyTableErrors(t *testing.T) {
	if _, err := ParsePolicyTable([]byte("permissions:\n  - stage: prod\n"), testARN); CodeOf(err) != ErrCodeConfiguration {
		t.Fatalf("missing scope: expected configuration error, got %v", err)
	}
	if _, err := ParsePolicyTable([]byte("permissions:\n  - scope: a\n"), ""); CodeOf(err) != ErrCodeConfiguration {
		t.Fatalf("missing arn: expected configuration error, got %v", err)
	}
	if _, err := ParsePolicyTable([]byte("permissions: ["), testARN); CodeOf(err) != ErrCodeConfiguration {
		t.Fatalf("bad yaml: expected configuration error, got %v", err)
	}
}

func TestLoadPolicyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(testTable), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := LoadPolicyTable(path, testARN)
	if err != nil {
		t.Fatalf("LoadPolicyTable: %v", err)
	}
	if len(table.Permissions) != 3 || table.Permissions[0].ARN != testARN {
		t.Fatalf("unexpected table: %+v", table.Permissions)
	}
	if _, err := LoadPolicyTable(filepath.Join(t.TempDir(), "missing.yaml"), testARN); CodeOf(err) != ErrCodeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
