package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is a full rule document: a default rule list plus optional
// per-guild lists. A guild with its own list does not inherit the default.
type Document struct {
	Default []Rule            `yaml:"default"`
	Guilds  map[string][]Rule `yaml:"guilds"`
}

// LoadFile reads and validates a rule document. A validation failure
// rejects the whole document; a partially valid document never loads.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) Validate() error {
	if err := validateList(d.Default); err != nil {
		return fmt.Errorf("default rules: %w", err)
	}
	for guildID, list := range d.Guilds {
		if err := validateList(list); err != nil {
			return fmt.Errorf("guild %s rules: %w", guildID, err)
		}
	}
	return nil
}

// ForGuild returns the rule list the engine should run for a guild.
// The returned slice is shared; callers treat it as read-only.
func (d *Document) ForGuild(guildID string) []Rule {
	if list, ok := d.Guilds[guildID]; ok {
		return list
	}
	return d.Default
}

func validateList(list []Rule) error {
	seen := make(map[string]struct{}, len(list))
	for i := range list {
		rule := &list[i]
		if err := rule.validate(); err != nil {
			return err
		}
		if _, dup := seen[rule.Name]; dup {
			return fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = struct{}{}
	}
	return nil
}
