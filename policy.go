package claimsx

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	policyVersion  = "2012-10-17"
	policyAction   = "execute-api:Invoke"
	EffectAllow    = "Allow"
	EffectDeny     = "Deny"
	wildcard       = "*"
	unknownSubject = "unknown"
)

// Permission grants one API Gateway route to callers holding Scope.
type Permission struct {
	ARN      string `yaml:"arn" json:"arn"`
	Stage    string `yaml:"stage" json:"stage"`
	Verb     string `yaml:"verb" json:"verb"`
	Resource string `yaml:"resource" json:"resource"`
	Scope    string `yaml:"scope" json:"scope"`
}

// resource renders the permission as arn/stage/verb/resource/.
func (p Permission) resource() string {
	return joinResource(p.ARN, p.Stage, p.Verb, p.Resource)
}

// Statement is one IAM policy statement.
type Statement struct {
	Effect   string `json:"Effect"`
	Action   string `json:"Action"`
	Resource string `json:"Resource"`
}

// PolicyDocument is an IAM policy.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// AuthPolicy is the authorizer's answer for one caller.
type AuthPolicy struct {
	PrincipalID    string         `json:"principalId"`
	PolicyDocument PolicyDocument `json:"policyDocument"`
}

// PolicyTable is the static authorization table.
type PolicyTable struct {
	Permissions []Permission `yaml:"permissions"`
}

// LoadPolicyTable reads a YAML authorization table. Permissions without an
// ARN get defaultARN.
func LoadPolicyTable(path, defaultARN string) (*PolicyTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(ErrCodeConfiguration, fmt.Errorf("read policy table: %w", err))
	}
	return ParsePolicyTable(raw, defaultARN)
}

// ParsePolicyTable decodes a YAML authorization table.
func ParsePolicyTable(raw []byte, defaultARN string) (*PolicyTable, error) {
	var table PolicyTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, newError(ErrCodeConfiguration, fmt.Errorf("decode policy table: %w", err))
	}
	for i := range table.Permissions {
		p := &table.Permissions[i]
		if p.ARN == "" {
			p.ARN = defaultARN
		}
		if p.ARN == "" || p.Scope == "" {
			return nil, newError(ErrCodeConfiguration, fmt.Errorf("permission %d: arn and scope are required", i))
		}
		if p.Stage == "" {
			p.Stage = wildcard
		}
		if p.Verb == "" {
			p.Verb = wildcard
		}
		if p.Resource == "" {
			p.Resource = wildcard
		}
	}
	return &table, nil
}

// Generate maps a verification outcome to a policy. Each permission whose
// scope the caller holds becomes one Allow statement; no match, or a failed
// verification, yields a single deny-all statement.
func (t *PolicyTable) Generate(v Verification) AuthPolicy {
	if !v.OK() {
		return denyAll(unknownSubject)
	}
	claims := v.Value()
	principal := principalOf(claims)
	scopes := callerScopes(claims)

	var statements []Statement
	if t != nil {
		for _, p := range t.Permissions {
			if _, ok := scopes[p.Scope]; !ok {
				continue
			}
			statements = append(statements, Statement{
				Effect:   EffectAllow,
				Action:   policyAction,
				Resource: p.resource(),
			})
		}
	}
	if len(statements) == 0 {
		return denyAll(principal)
	}
	return AuthPolicy{
		PrincipalID:    principal,
		PolicyDocument: PolicyDocument{Version: policyVersion, Statement: statements},
	}
}

func denyAll(principal string) AuthPolicy {
	return AuthPolicy{
		PrincipalID: principal,
		PolicyDocument: PolicyDocument{
			Version: policyVersion,
			Statement: []Statement{{
				Effect:   EffectDeny,
				Action:   policyAction,
				Resource: joinResource(wildcard, wildcard, wildcard, wildcard),
			}},
		},
	}
}

func joinResource(parts ...string) string {
	return strings.Join(parts, "/") + "/"
}

func principalOf(claims TokenClaims) string {
	for _, key := range []string{claimSubject, "username", claimUsername} {
		if s, ok := claims[key].(string); ok && s != "" {
			return s
		}
	}
	return unknownSubject
}

// callerScopes collects OAuth scopes (space separated) and Cognito groups.
func callerScopes(claims TokenClaims) map[string]struct{} {
	set := make(map[string]struct{})
	if s, ok := claims["scope"].(string); ok {
		for _, scope := range strings.Fields(s) {
			set[scope] = struct{}{}
		}
	}
	for _, group := range stringList(claims["cognito:groups"]) {
		set[group] = struct{}{}
	}
	return set
}
