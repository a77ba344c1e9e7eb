// Package postgres implements the application's store interfaces on top of
// database/sql. The *sql.DB comes from pg.OpenDB, so every query runs on the
// shared pgx pool.
package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// statusList renders "$n, $n+1, ..." for an IN list and returns the
// matching arguments.
func statusList(statuses []subscription.Status, first int) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		marks[i] = fmt.Sprintf("$%d", first+i)
		args[i] = string(s)
	}
	return strings.Join(marks, ", "), args
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

func unmarshalMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
