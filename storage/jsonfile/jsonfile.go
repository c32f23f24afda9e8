// Package jsonfile reads and writes the legacy checkpoint file, a JSON object
// mapping category names to the last processed page:
//
//	{"science": 7, "biology": 3}
//
// It is used to import progress into, and export progress from, the
// checkpoint repository.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/doajsync/core"
)

// Load reads a checkpoint file. Pages must be non-negative integers.
func Load(path string) (map[core.Category]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw map[string]json.Number
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	pages := make(map[core.Category]int, len(raw))
	for name, number := range raw {
		page, err := number.Int64()
		if err != nil {
			return nil, fmt.Errorf("category %s: page %q is not an integer", name, number)
		}
		cursor := core.Cursor{Category: core.Category(name), Page: int(page)}
		if err := core.ValidateCursor(&cursor); err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		pages[cursor.Category] = cursor.Page
	}
	return pages, nil
}

// Save writes pages to path atomically: the data goes to a temporary file in
// the same directory which then replaces path.
func Save(path string, pages map[core.Category]int) error {
	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoints: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
