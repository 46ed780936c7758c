package claimsx

import (
	"encoding/json"
	"strconv"
)

// HasuraClaimsKey is the namespaced token claim carrying the claims document.
const HasuraClaimsKey = "https://hasura.io/jwt/claims"

// ClaimsDocument is the role document consumed by the GraphQL authorization layer.
type ClaimsDocument struct {
	UserID       string   `json:"x-hasura-user-id"`
	DefaultRole  string   `json:"x-hasura-default-role"`
	AllowedRoles []string `json:"x-hasura-allowed-roles"`
	DatabaseID   string   `json:"x-hasura-user-db-id,omitempty"`
	WorkgroupID  string   `json:"x-hasura-user-wg-id,omitempty"`
}

// NewClaimsDocument formats a document the way user provisioning does: the
// first role becomes the default role and numeric ids are rendered as strings.
// The default role is not checked against the allowed roles.
func NewClaimsDocument(userID string, roles []string, databaseID, workgroupID int) ClaimsDocument {
	doc := ClaimsDocument{
		UserID:       userID,
		AllowedRoles: append([]string(nil), roles...),
		DatabaseID:   strconv.Itoa(databaseID),
		WorkgroupID:  strconv.Itoa(workgroupID),
	}
	if len(roles) > 0 {
		doc.DefaultRole = roles[0]
	}
	return doc
}

// AllowsRole reports whether role is in the allowed-roles list.
func (d ClaimsDocument) AllowsRole(role string) bool {
	for _, r := range d.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// JSON renders the document as the string embedded in tokens.
func (d ClaimsDocument) JSON() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseClaimsDocument decodes a JSON claims document.
func ParseClaimsDocument(raw []byte) (ClaimsDocument, error) {
	var doc ClaimsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ClaimsDocument{}, err
	}
	return doc, nil
}
