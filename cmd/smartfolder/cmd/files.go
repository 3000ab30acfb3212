package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

// documentEntry is one document in a documents file.
type documentEntry struct {
	ID     types.DocumentID `yaml:"id"`
	Fields map[string]any   `yaml:"fields"`
}

// loadFolderFile reads a folder definition from YAML (or JSON, which YAML
// accepts). It also returns the rules that omit isActive: those decode as
// inactive and never affect matching, which is rarely what the author meant.
func loadFolderFile(path string) (*types.SmartFolder, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read folder file: %w", err)
	}
	var f types.SmartFolder
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("parse folder file %s: %w", path, err)
	}
	if f.Name == "" {
		return nil, nil, fmt.Errorf("folder file %s: name is required", path)
	}
	if f.Settings == (types.FolderSettings{}) {
		f.Settings = types.DefaultFolderSettings()
	}

	var shape struct {
		RuleSet groupShape `yaml:"ruleSet"`
	}
	if err := yaml.Unmarshal(raw, &shape); err != nil {
		return nil, nil, fmt.Errorf("parse folder file %s: %w", path, err)
	}
	return &f, shape.RuleSet.missingIsActive("ruleSet", nil), nil
}

// groupShape mirrors the rule tree just far enough to tell an omitted
// isActive from an explicit false.
type groupShape struct {
	Rules []struct {
		ID       string `yaml:"id"`
		IsActive *bool  `yaml:"isActive"`
	} `yaml:"rules"`
	Groups []groupShape `yaml:"groups"`
}

func (g groupShape) missingIsActive(at string, out []string) []string {
	for i, r := range g.Rules {
		if r.IsActive != nil {
			continue
		}
		if r.ID != "" {
			out = append(out, r.ID)
		} else {
			out = append(out, fmt.Sprintf("%s.rules[%d]", at, i))
		}
	}
	for i, child := range g.Groups {
		out = child.missingIsActive(fmt.Sprintf("%s.groups[%d]", at, i), out)
	}
	return out
}

// warnMissingIsActive writes one line per rule that omits isActive.
func warnMissingIsActive(w io.Writer, path string, missing []string) {
	for _, rule := range missing {
		fmt.Fprintf(w, "warning: %s: rule %s omits isActive and is loaded as inactive; set isActive: true for it to affect matching\n", path, rule)
	}
}

// loadDocumentsFile reads a list of documents from YAML or JSON. Fields are
// normalized through JSON so numbers and nested values decode the same way
// as documents read from the database.
func loadDocumentsFile(path string) ([]documentEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documents file: %w", err)
	}
	var entries []documentEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse documents file %s: %w", path, err)
	}

	seen := make(map[types.DocumentID]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("documents file %s: entry %d has no id", path, i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("documents file %s: duplicate id %s", path, e.ID)
		}
		seen[e.ID] = true
	}
	return entries, nil
}

// toDocuments converts entries to evaluable documents.
func toDocuments(entries []documentEntry) ([]rules.Document, error) {
	docs := make([]rules.Document, 0, len(entries))
	for _, e := range entries {
		fields := e.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", e.ID, err)
		}
		doc, err := rules.NewJSONDocument(e.ID, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
