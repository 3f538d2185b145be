package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sky-flux/tutor"
)

// readCatalog loads items from a JSON array file, or from JSON lines when
// the file ends in .jsonl. Duplicate ids keep their first occurrence.
func readCatalog(path string) ([]tutor.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var items []tutor.Item
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		sc := bufio.NewScanner(bytes.NewReader(data))
		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var it tutor.Item
			if err := json.Unmarshal(raw, &it); err != nil {
				return nil, fmt.Errorf("catalog line %d: %w", line, err)
			}
			items = append(items, it)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
	} else if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
	}
	return tutor.Dedupe(items), nil
}

func writeCatalog(path string, items []tutor.Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func findItem(items []tutor.Item, id string) (tutor.Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return tutor.Item{}, false
}
