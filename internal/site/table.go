package site

import (
	"fmt"
	"strings"
)

// Table is an immutable ordered list of site entries plus an optional
// fallback. Entry order decides which substring pattern wins.
type Table struct {
	entries  []Entry
	exact    map[string]int
	fallback *Config
}

// NewTable validates and copies entries into a Table. A nil fallback leaves
// unmatched hosts disabled.
func NewTable(entries []Entry, fallback *Config) (*Table, error) {
	t := &Table{
		entries: make([]Entry, 0, len(entries)),
		exact:   make(map[string]int, len(entries)),
	}

	for _, entry := range entries {
		pattern := strings.ToLower(strings.TrimSpace(entry.Pattern))
		if pattern == "" {
			return nil, fmt.Errorf("%w: empty hostname pattern", ErrInvalidConfig)
		}
		if _, dup := t.exact[pattern]; dup {
			return nil, fmt.Errorf("%w: duplicate hostname pattern %q", ErrInvalidConfig, pattern)
		}
		if err := entry.Config.Validate(); err != nil {
			return nil, fmt.Errorf("site %q: %w", pattern, err)
		}
		t.exact[pattern] = len(t.entries)
		t.entries = append(t.entries, Entry{Pattern: pattern, Config: entry.Config})
	}

	if fallback != nil {
		if err := fallback.Validate(); err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		fb := *fallback
		t.fallback = &fb
	}

	return t, nil
}

// Entries returns a copy of the table's entries in precedence order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Fallback returns a copy of the fallback record, or nil.
func (t *Table) Fallback() *Config {
	if t.fallback == nil {
		return nil
	}
	fb := *t.fallback
	return &fb
}

func (t *Table) lookup(pattern string) (Config, bool) {
	idx, ok := t.exact[pattern]
	if !ok {
		return Config{}, false
	}
	return t.entries[idx].Config, true
}
