// Package registry maps public model names to backend model identifiers,
// provider families and pricing. The catalog is static for the life of the
// process: either the builtin set or a YAML file loaded at startup.
package registry

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Family identifies which provider adapter handles a model.
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyNova      Family = "nova"
	FamilyTitan     Family = "titan"
)

func (f Family) valid() bool {
	switch f {
	case FamilyAnthropic, FamilyNova, FamilyTitan:
		return true
	}
	return false
}

// Model is one catalog entry. Prices are USD per 1000 tokens.
type Model struct {
	Name              string   `yaml:"name"`
	Aliases           []string `yaml:"aliases,omitempty"`
	Family            Family   `yaml:"family"`
	BackendID         string   `yaml:"backend_id"`
	Description       string   `yaml:"description,omitempty"`
	InputPer1K        float64  `yaml:"input_price_per_1k"`
	OutputPer1K       float64  `yaml:"output_price_per_1k"`
	SupportsStreaming bool     `yaml:"supports_streaming"`
}

// Cost returns the USD cost of a request, rounded to 6 decimal places so
// accumulated totals stay stable across stores.
func (m Model) Cost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1000*m.InputPer1K + float64(outputTokens)/1000*m.OutputPer1K
	return math.Round(cost*1e6) / 1e6
}

// Registry resolves public model names (including aliases) to catalog
// entries. It is immutable after construction and safe for concurrent use.
type Registry struct {
	byName map[string]Model
	order  []string
}

// New builds a registry from entries, validating each one. Aliases resolve
// to the same entry but do not appear in List.
func New(entries []Model) (*Registry, error) {
	r := &Registry{byName: make(map[string]Model, len(entries))}
	for i, m := range entries {
		if m.Name == "" {
			return nil, fmt.Errorf("model %d: name is required", i)
		}
		if !m.Family.valid() {
			return nil, fmt.Errorf("model %s: unknown family %q", m.Name, m.Family)
		}
		if m.BackendID == "" {
			return nil, fmt.Errorf("model %s: backend_id is required", m.Name)
		}
		if m.InputPer1K < 0 || m.OutputPer1K < 0 {
			return nil, fmt.Errorf("model %s: prices must be non-negative", m.Name)
		}
		if _, dup := r.byName[m.Name]; dup {
			return nil, fmt.Errorf("model %s: duplicate name", m.Name)
		}
		r.byName[m.Name] = m
		r.order = append(r.order, m.Name)
		for _, alias := range m.Aliases {
			if _, dup := r.byName[alias]; dup {
				return nil, fmt.Errorf("model %s: duplicate alias %q", m.Name, alias)
			}
			r.byName[alias] = m
		}
	}
	return r, nil
}

// LoadFile reads a YAML catalog of the form {models: [...]}.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	var doc struct {
		Models []Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse models file: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("models file %s defines no models", path)
	}
	return New(doc.Models)
}

// Resolve looks up a model by public name or alias.
func (r *Registry) Resolve(name string) (Model, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// List returns catalog entries in declaration order, aliases excluded.
func (r *Registry) List() []Model {
	out := make([]Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

var builtin = []Model{
	{
		Name:              "claude-3-haiku",
		Family:            FamilyAnthropic,
		BackendID:         "anthropic.claude-3-haiku-20240307-v1:0",
		Description:       "Fast and efficient for simple tasks",
		InputPer1K:        0.00025,
		OutputPer1K:       0.00125,
		SupportsStreaming: true,
	},
	{
		Name:              "claude-3-sonnet",
		Family:            FamilyAnthropic,
		BackendID:         "anthropic.claude-3-sonnet-20240229-v1:0",
		Description:       "Balanced performance and capability",
		InputPer1K:        0.003,
		OutputPer1K:       0.015,
		SupportsStreaming: true,
	},
	{
		Name:              "claude-3-opus",
		Family:            FamilyAnthropic,
		BackendID:         "anthropic.claude-3-opus-20240229-v1:0",
		Description:       "Deep reasoning for the hardest tasks",
		InputPer1K:        0.015,
		OutputPer1K:       0.075,
		SupportsStreaming: true,
	},
	{
		Name:              "claude-3.5-sonnet",
		Aliases:           []string{"claude-3-5-sonnet"},
		Family:            FamilyAnthropic,
		BackendID:         "anthropic.claude-3-5-sonnet-20240620-v1:0",
		Description:       "Most capable model for complex tasks",
		InputPer1K:        0.003,
		OutputPer1K:       0.015,
		SupportsStreaming: true,
	},
	{
		Name:              "nova-micro",
		Family:            FamilyNova,
		BackendID:         "amazon.nova-micro-v1:0",
		Description:       "Lowest-cost option for high-volume workloads",
		InputPer1K:        0.000035,
		OutputPer1K:       0.00014,
		SupportsStreaming: true,
	},
	{
		Name:              "nova-lite",
		Family:            FamilyNova,
		BackendID:         "amazon.nova-lite-v1:0",
		Description:       "Low-cost model for everyday text tasks",
		InputPer1K:        0.00006,
		OutputPer1K:       0.00024,
		SupportsStreaming: true,
	},
	{
		Name:              "titan-text-express",
		Family:            FamilyTitan,
		BackendID:         "amazon.titan-text-express-v1",
		Description:       "Amazon Titan for general text generation",
		InputPer1K:        0.0002,
		OutputPer1K:       0.0006,
		SupportsStreaming: false,
	},
}

// Default returns the builtin catalog.
func Default() *Registry {
	r, err := New(builtin)
	if err != nil {
		// builtin entries are validated by tests; this cannot happen at runtime
		panic(err)
	}
	return r
}
