package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"gopkg.in/yaml.v3"
)

// ruleFile is the object form of a rule file; a bare list of rules is accepted too.
type ruleFile struct {
	Rules []models.RuleDescriptor `json:"rules" yaml:"rules"`
}

// ReadRulesFile parses the rule file at path, choosing the format from its extension.
//
// Files without a .json, .yaml or .yml extension are parsed as YAML, which also accepts JSON.
func ReadRulesFile(path string) ([]models.RuleDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	return ParseRules(f, format)
}

// ParseRules decodes and validates rule descriptors from r.
//
// The document is either a list of rules or an object with a "rules" list.
func ParseRules(r io.Reader, format Format) ([]models.RuleDescriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, shared.ErrEmptyInput
	}

	var rules []models.RuleDescriptor
	switch format {
	case FormatJSON:
		rules, err = decodeJSONRules(data)
	case FormatYAML:
		rules, err = decodeYAMLRules(data)
	default:
		return nil, fmt.Errorf("%w: unsupported rules format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	if len(rules) == 0 {
		return nil, shared.ErrEmptyInput
	}
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", shared.ErrInvalidInput, i+1, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %s", shared.ErrInvalidInput, rule.ID)
		}
		seen[rule.ID] = true
	}
	return rules, nil
}

func decodeJSONRules(data []byte) ([]models.RuleDescriptor, error) {
	if data[0] == '[' {
		var rules []models.RuleDescriptor
		err := json.Unmarshal(data, &rules)
		return rules, err
	}
	var doc ruleFile
	err := json.Unmarshal(data, &doc)
	return doc.Rules, err
}

func decodeYAMLRules(data []byte) ([]models.RuleDescriptor, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	if node.Content[0].Kind == yaml.SequenceNode {
		var rules []models.RuleDescriptor
		err := node.Decode(&rules)
		return rules, err
	}
	var doc ruleFile
	err := node.Decode(&doc)
	return doc.Rules, err
}
