package claimsx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

const (
	insertUsersKey = "insert_moped_users"
	zeroID         = "0"
)

// ExtractDatabaseIDs pulls the new user's database id and workgroup id out of
// an insert_moped_users mutation response. Any missing, null, empty or
// differently shaped part yields "0" for the affected id; it never fails.
func ExtractDatabaseIDs(response map[string]any) (databaseID, workgroupID string) {
	databaseID, workgroupID = zeroID, zeroID
	data, ok := response["data"].(map[string]any)
	if !ok {
		return
	}
	insert, ok := data[insertUsersKey].(map[string]any)
	if !ok {
		return
	}
	returning, ok := insert["returning"].([]any)
	if !ok || len(returning) == 0 {
		return
	}
	row, ok := returning[0].(map[string]any)
	if !ok {
		return
	}
	databaseID = idString(row["user_id"])
	workgroupID = idString(row["workgroup_id"])
	return
}

// ExtractDatabaseIDsJSON is ExtractDatabaseIDs over a raw response body.
// Undecodable input yields ("0", "0"). Numbers are kept exact.
func ExtractDatabaseIDsJSON(body []byte) (databaseID, workgroupID string) {
	if len(body) == 0 {
		return zeroID, zeroID
	}
	var response map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&response); err != nil {
		return zeroID, zeroID
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zeroID, zeroID
	}
	return ExtractDatabaseIDs(response)
}

func idString(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case json.Number:
		return n.String()
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case string:
		if n != "" {
			return n
		}
	}
	return zeroID
}
