package resolve

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed aliases.json
var defaultAliasJSON []byte

// maxAliasHops caps alias chasing so a cyclic table cannot loop.
const maxAliasHops = 3

// AliasTable maps known alternate spellings to a canonical one. Keys and
// values are stored in normalized form; lookups happen after Normalize.
type AliasTable struct {
	m map[string]string
}

// DefaultAliases returns the table embedded in the binary.
func DefaultAliases() *AliasTable {
	t, err := parseAliases(defaultAliasJSON)
	if err != nil {
		// The embedded table is fixed at build time; a parse failure here is
		// a programming error, not an input error.
		panic(fmt.Sprintf("resolve: embedded alias table: %v", err))
	}
	return t
}

// LoadAliases returns the embedded defaults overlaid with the JSON file at
// path. Entries in the file win over the defaults.
func LoadAliases(path string) (*AliasTable, error) {
	t := DefaultAliases()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resolve: reading alias file: %w", err)
	}
	extra, err := parseAliases(data)
	if err != nil {
		return nil, fmt.Errorf("resolve: alias file %s: %w", path, err)
	}
	for k, v := range extra.m {
		t.m[k] = v
	}
	return t, nil
}

func parseAliases(data []byte) (*AliasTable, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing alias JSON: %w", err)
	}
	m := make(map[string]string, len(raw))
	for k, v := range raw {
		nk := Normalize(k)
		nv := Normalize(v)
		if nk == "" || nv == "" || nk == nv {
			continue
		}
		m[nk] = nv
	}
	return &AliasTable{m: m}, nil
}

// Apply substitutes a normalized label through the table, chasing chains up
// to maxAliasHops deep.
func (t *AliasTable) Apply(norm string) string {
	for range maxAliasHops {
		next, ok := t.m[norm]
		if !ok || next == norm {
			return norm
		}
		norm = next
	}
	return norm
}

// Len reports the number of alias entries.
func (t *AliasTable) Len() int { return len(t.m) }
