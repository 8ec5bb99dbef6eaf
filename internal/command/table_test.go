package command

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewTableNormalizesAndKeepsOrder(t *testing.T) {
	table, err := NewTable([]Entry{
		{Phrase: "  Modo Escuro ", Action: Effect(EffectDarkModeOn)},
		{Phrase: "Página Inicial", Action: Navigate("/")},
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	entries := table.Entries()
	if entries[0].Phrase != "modo escuro" || entries[1].Phrase != "página inicial" {
		t.Fatalf("unexpected phrases: %+v", entries)
	}
	if _, ok := table.Lookup("pagina inicial"); ok {
		t.Fatal("diacritics must be preserved in keys")
	}
}

func TestNewTableRejectsInvalidEntries(t *testing.T) {
	cases := map[string][]Entry{
		"duplicate after normalization": {
			{Phrase: "ajuda", Action: Navigate("/ajuda")},
			{Phrase: " AJUDA", Action: Navigate("/help")},
		},
		"blank phrase":   {{Phrase: "  ", Action: Navigate("/")}},
		"empty path":     {{Phrase: "home", Action: Navigate("")}},
		"unknown effect": {{Phrase: "girar", Action: Effect("rotate")}},
		"unknown kind":   {{Phrase: "x", Action: Action{Kind: "script"}}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewTable(entries); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	table := DefaultTable()
	entries := table.Entries()
	entries[0].Phrase = "mutated"
	if table.Entries()[0].Phrase == "mutated" {
		t.Fatal("table must not be mutable through Entries")
	}
}

const validCommandFile = `version: v1
language: pt-BR
commands:
  - phrase: Treinar Entrevista
    navigate: /entrevista/simulacao
  - phrase: voltar
    effect: history-back
`

func TestLoadTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	if err := os.WriteFile(path, []byte(validCommandFile), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", table.Len())
	}
	action, ok := table.Lookup("treinar entrevista")
	if !ok || action.Path != "/entrevista/simulacao" {
		t.Fatalf("unexpected lookup: %+v %v", action, ok)
	}
}

func TestLoadTableEmptyPathUsesDefaults(t *testing.T) {
	table, err := LoadTable("")
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != DefaultTable().Len() {
		t.Fatalf("expected default table")
	}
}

func TestValidateFile(t *testing.T) {
	cases := map[string]File{
		"missing version": {Commands: []FileEntry{{Phrase: "a", Navigate: "/"}}},
		"no commands":     {Version: "v1"},
		"both targets":    {Version: "v1", Commands: []FileEntry{{Phrase: "a", Navigate: "/", Effect: "reload"}}},
		"no target":       {Version: "v1", Commands: []FileEntry{{Phrase: "a"}}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			if err := Validate(f); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
