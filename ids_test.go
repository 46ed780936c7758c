package claimsx

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractDatabaseIDs(t *testing.T) {
	cases := []struct {
		name string
		body string
		dbID string
		wgID string
	}{
		{"full", `{"data":{"insert_moped_users":{"affected_rows":1,"returning":[{"user_id":4,"workgroup_id":1}]}}}`, "4", "1"},
		{"missing workgroup", `{"data":{"insert_moped_users":{"affected_rows":1,"returning":[{"user_id":4}]}}}`, "4", "0"},
		{"empty returning", `{"data":{"insert_moped_users":{"affected_rows":0,"returning":[]}}}`, "0", "0"},
		{"null returning", `{"data":{"insert_moped_users":{"affected_rows":0,"returning":null}}}`, "0", "0"},
		{"missing returning", `{"data":{"insert_moped_users":{"affected_rows":1}}}`, "0", "0"},
		{"other mutation", `{"data":{"update_moped_users":{"affected_rows":1,"returning":[{"user_id":4,"workgroup_id":1}]}}}`, "0", "0"},
		{"errors only", `{"errors":[{"message":"permission denied"}]}`, "0", "0"},
		{"null", `null`, "0", "0"},
		{"empty", ``, "0", "0"},
		{"not json", `<html>`, "0", "0"},
		{"ids beyond float precision", `{"data":{"insert_moped_users":{"returning":[{"user_id":9007199254740993,"workgroup_id":18014398509481985}]}}}`, "9007199254740993", "18014398509481985"},
		{"trailing data", `{"data":{"insert_moped_users":{"returning":[{"user_id":4,"workgroup_id":1}]}}} {}`, "0", "0"},
		{"string ids", `{"data":{"insert_moped_users":{"returning":[{"user_id":"12","workgroup_id":"3"}]}}}`, "12", "3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dbID, wgID := ExtractDatabaseIDsJSON([]byte(tc.body))
			if dbID != tc.dbID || wgID != tc.wgID {
				t.Fatalf("got (%q, %q), want (%q, %q)", dbID, wgID, tc.dbID, tc.wgID)
			}
		})
	}
}

func TestExtractDatabaseIDsNilResponse(t *testing.T) {
	dbID, wgID := ExtractDatabaseIDs(nil)
	if dbID != "0" || wgID != "0" {
		t.Fatalf("got (%q, %q)", dbID, wgID)
	}
}

func TestExtractDatabaseIDsNumberDecoding(t *testing.T) {
	var response map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"data":{"insert_moped_users":{"returning":[{"user_id":123456789,"workgroup_id":7}]}}}`))
	dec.UseNumber()
	if err := dec.Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	dbID, wgID := ExtractDatabaseIDs(response)
	if dbID != "123456789" || wgID != "7" {
		t.Fatalf("got (%q, %q)", dbID, wgID)
	}
}
