package infra

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
)

// configDocument is the YAML shape of profiles and rules.
// Enabled is a pointer so a file without the key keeps the stored switch.
type configDocument struct {
	Enabled       *bool               `yaml:"enabled,omitempty"`
	GlobalMessage string              `yaml:"global_message,omitempty"`
	Profiles      []domain.Profile    `yaml:"profiles"`
	Rules         []domain.RuleRecord `yaml:"rules"`
}

// ParseConfig decodes and validates a YAML configuration.
// Without an enabled key the document keeps previous.Enabled (true when there is no previous).
// Rules without an id get one: reused from previous when an identical rule exists there,
// otherwise a fresh UUID.
func ParseConfig(r io.Reader, previous *domain.Configuration) (*domain.Configuration, error) {
	var doc configDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	enabled := true
	switch {
	case doc.Enabled != nil:
		enabled = *doc.Enabled
	case previous != nil:
		enabled = previous.Enabled
	}

	cfg := &domain.Configuration{
		Enabled:       enabled,
		GlobalMessage: strings.TrimSpace(doc.GlobalMessage),
		Profiles:      doc.Profiles,
		Rules:         doc.Rules,
	}
	for i := range cfg.Rules {
		if cfg.Rules[i].Kind == "" {
			cfg.Rules[i].Kind = domain.RuleKindDomain
		}
	}
	assignRuleIDs(cfg, previous)

	if _, err := policy.NewRegistry(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads and validates the YAML file at path.
func LoadConfigFile(path string, previous *domain.Configuration) (*domain.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(bytes.NewReader(data), previous)
}

// MarshalConfig encodes cfg as YAML, ids included.
func MarshalConfig(cfg *domain.Configuration) ([]byte, error) {
	enabled := cfg.Enabled
	doc := configDocument{
		Enabled:       &enabled,
		GlobalMessage: cfg.GlobalMessage,
		Profiles:      cfg.Profiles,
		Rules:         cfg.Rules,
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func assignRuleIDs(cfg *domain.Configuration, previous *domain.Configuration) {
	reusable := map[string][]string{}
	if previous != nil {
		for _, r := range previous.Rules {
			k := ruleFingerprint(r)
			reusable[k] = append(reusable[k], r.ID)
		}
	}

	taken := map[string]bool{}
	for _, r := range cfg.Rules {
		if r.ID != "" {
			taken[r.ID] = true
		}
	}

	for i := range cfg.Rules {
		if cfg.Rules[i].ID != "" {
			continue
		}
		k := ruleFingerprint(cfg.Rules[i])
		for len(reusable[k]) > 0 {
			id := reusable[k][0]
			reusable[k] = reusable[k][1:]
			if !taken[id] {
				cfg.Rules[i].ID = id
				break
			}
		}
		if cfg.Rules[i].ID == "" {
			cfg.Rules[i].ID = uuid.NewString()
		}
		taken[cfg.Rules[i].ID] = true
	}
}

func ruleFingerprint(r domain.RuleRecord) string {
	kind := r.Kind
	if kind == "" {
		kind = domain.RuleKindDomain
	}
	return fmt.Sprintf("%s|%s|%s|%s", kind, strings.Join(r.Profiles, ","), r.Message, r.DomainSpec)
}
