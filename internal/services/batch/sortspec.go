package batch

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SortKey is one (field, direction) pair of a batch list ordering.
type SortKey struct {
	Field string
	Desc  bool
}

// sortableFields maps caller-facing ordering keys to batch columns.
var sortableFields = map[string]string{
	"received_at":    "received_at",
	"expires_at":     "expires_at",
	"stocked_out_at": "stocked_out_at",
	"quantity":       "quantity",
	"status":         "status",
	"id":             "id",
}

// ParseSortSpec resolves raw ordering keys ("received_at", "-quantity") into
// a concrete key list. Duplicate fields collapse to their first occurrence;
// direction defaults to ascending.
func ParseSortSpec(raw []string) ([]SortKey, error) {
	var keys []SortKey
	seen := make(map[string]bool)

	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		desc := false
		if strings.HasPrefix(entry, "-") {
			desc = true
			entry = entry[1:]
		}

		column, ok := sortableFields[entry]
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown ordering key %q", entry)
		}
		if seen[column] {
			continue
		}
		seen[column] = true
		keys = append(keys, SortKey{Field: column, Desc: desc})
	}

	return keys, nil
}

func orderClause(keys []SortKey) string {
	if len(keys) == 0 {
		return "received_at ASC, id ASC"
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, k.Field+" "+dir)
	}
	return strings.Join(parts, ", ")
}
