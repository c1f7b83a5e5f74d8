package sounds

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Definition describes one sound to generate.
type Definition struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Priority int    `json:"priority"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
}

type definitionsFile struct {
	Sounds []Definition `json:"sounds"`
}

// Load reads a definitions file.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f definitionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse definitions %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Sounds))
	for i, d := range f.Sounds {
		if d.ID == "" {
			return nil, fmt.Errorf("definition %d has no id", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate definition id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return f.Sounds, nil
}

// Filter narrows a batch. Zero values match everything.
type Filter struct {
	MaxPriority *int
	ID          string
	Category    string
}

// Apply returns the definitions matching every set criterion, in input order.
func (f Filter) Apply(defs []Definition) []Definition {
	var out []Definition
	for _, d := range defs {
		if f.MaxPriority != nil && d.Priority > *f.MaxPriority {
			continue
		}
		if f.ID != "" && d.ID != f.ID {
			continue
		}
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Without drops definitions whose id is in done.
func Without(defs []Definition, done map[string]bool) []Definition {
	var out []Definition
	for _, d := range defs {
		if !done[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// Group is one category of definitions for the list view.
type Group struct {
	Category string
	Sounds   []Definition
}

// ByCategory groups definitions by category, categories sorted by name.
func ByCategory(defs []Definition) []Group {
	index := map[string]int{}
	var groups []Group
	for _, d := range defs {
		i, ok := index[d.Category]
		if !ok {
			i = len(groups)
			index[d.Category] = i
			groups = append(groups, Group{Category: d.Category})
		}
		groups[i].Sounds = append(groups[i].Sounds, d)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Category < groups[j].Category
	})
	return groups
}
