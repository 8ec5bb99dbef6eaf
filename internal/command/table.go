package command

import (
	"fmt"
	"strings"
)

// Entry binds a normalized phrase to an action.
type Entry struct {
	Phrase string `json:"phrase"`
	Action Action `json:"action"`
}

// Table is an ordered, read-only phrase table. Order matters: the fuzzy
// fallback picks the first entry that overlaps the spoken command.
type Table struct {
	entries []Entry
	index   map[string]int
}

// Normalize lowercases and trims a phrase. Diacritics are kept.
func Normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// NewTable builds a table from entries in the given order. Phrases are
// normalized; duplicates, blanks and invalid actions are rejected.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		phrase := Normalize(e.Phrase)
		if phrase == "" {
			return nil, fmt.Errorf("entry %d: phrase must not be empty", i)
		}
		if _, dup := t.index[phrase]; dup {
			return nil, fmt.Errorf("entry %d: duplicate phrase %q", i, phrase)
		}
		if err := e.Action.validate(); err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", i, phrase, err)
		}
		t.index[phrase] = len(t.entries)
		t.entries = append(t.entries, Entry{Phrase: phrase, Action: e.Action})
	}
	return t, nil
}

// Len returns the number of phrases.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of the table in definition order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Lookup returns the action bound to an already normalized phrase.
func (t *Table) Lookup(phrase string) (Action, bool) {
	i, ok := t.index[phrase]
	if !ok {
		return Action{}, false
	}
	return t.entries[i].Action, true
}

// FirstOverlap returns the first entry, in table order, whose phrase contains
// command or is contained in it.
func (t *Table) FirstOverlap(command string) (Entry, bool) {
	if command == "" {
		return Entry{}, false
	}
	for _, e := range t.entries {
		if strings.Contains(e.Phrase, command) || strings.Contains(command, e.Phrase) {
			return e, true
		}
	}
	return Entry{}, false
}
