package command

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File describes a phrase table on disk. Entries keep their file order.
type File struct {
	Version  string      `yaml:"version"`
	Language string      `yaml:"language,omitempty"`
	Commands []FileEntry `yaml:"commands"`
}

type FileEntry struct {
	Phrase   string `yaml:"phrase"`
	Navigate string `yaml:"navigate,omitempty"`
	Effect   string `yaml:"effect,omitempty"`
}

// LoadFile reads a command table file from disk.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse command file: %w", err)
	}
	return f, nil
}

// Validate ensures the file declares a usable table.
func Validate(f File) error {
	if f.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(f.Commands) == 0 {
		return fmt.Errorf("commands must include at least one entry")
	}
	_, err := f.Table()
	return err
}

// Table converts the file into an immutable Table.
func (f File) Table() (*Table, error) {
	entries := make([]Entry, 0, len(f.Commands))
	for i, c := range f.Commands {
		switch {
		case c.Navigate != "" && c.Effect != "":
			return nil, fmt.Errorf("commands[%d]: navigate and effect are mutually exclusive", i)
		case c.Navigate != "":
			entries = append(entries, Entry{Phrase: c.Phrase, Action: Navigate(c.Navigate)})
		case c.Effect != "":
			entries = append(entries, Entry{Phrase: c.Phrase, Action: Effect(EffectID(c.Effect))})
		default:
			return nil, fmt.Errorf("commands[%d]: one of navigate or effect is required", i)
		}
	}
	return NewTable(entries)
}

// LoadTable reads, validates and builds a table. An empty path yields the
// built-in table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(f); err != nil {
		return nil, fmt.Errorf("invalid command file %s: %w", path, err)
	}
	return f.Table()
}
