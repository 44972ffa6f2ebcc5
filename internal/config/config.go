// Package config loads the tallybook.yaml book configuration: the alias
// table, the auto-balance and hidden-fee accounts, the base commodity,
// and per-commodity display rules. Alias chains are flattened here, once,
// at load time; booking never re-resolves them.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// CommodityConfig is the display rule for one commodity.
type CommodityConfig struct {
	DecimalSeparator string `yaml:"decimal_separator,omitempty"`
	GroupSeparator   string `yaml:"group_separator,omitempty"`
	Precision        int32  `yaml:"precision"`
}

// Config represents the top-level tallybook.yaml configuration.
type Config struct {
	BaseCommodity     string                     `yaml:"base_commodity"`
	AutoBalance       bool                       `yaml:"auto_balance"`
	AdjustmentAccount string                     `yaml:"adjustment_account,omitempty"`
	CommissionAccount string                     `yaml:"commission_account,omitempty"`
	AccountAliases    map[string]string          `yaml:"account_aliases,omitempty"`
	CommodityAliases  map[string]string          `yaml:"commodity_aliases,omitempty"`
	Commodities       map[string]CommodityConfig `yaml:"commodities,omitempty"`
}

// AliasCycleError reports a transitive alias chain that never reaches a
// canonical name. It is detected at configuration-validation time,
// before any booking occurs.
type AliasCycleError struct {
	Kind  string // "account" or "commodity"
	Chain []string
}

func (e *AliasCycleError) Error() string {
	return fmt.Sprintf("%s alias cycle: %s", e.Kind, strings.Join(e.Chain, " -> "))
}

// Load reads a tallybook.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new book.
func Default(baseCommodity string) *Config {
	return &Config{
		BaseCommodity:     baseCommodity,
		AutoBalance:       false,
		AdjustmentAccount: "Equity:Adjustments",
		CommissionAccount: "Expenses:Commission",
	}
}

// Validate flattens both alias tables in place, resolving alias-of-alias
// chains to their fixed point. A cycle is a hard configuration error.
func (c *Config) Validate() error {
	flat, err := flatten("account", c.AccountAliases)
	if err != nil {
		return err
	}
	c.AccountAliases = flat

	flat, err = flatten("commodity", c.CommodityAliases)
	if err != nil {
		return err
	}
	c.CommodityAliases = flat
	return nil
}

// flatten resolves every alias to its canonical name with a visited set
// for cycle detection.
func flatten(kind string, aliases map[string]string) (map[string]string, error) {
	if len(aliases) == 0 {
		return aliases, nil
	}

	flat := make(map[string]string, len(aliases))

	// Deterministic iteration so a cycle is always reported from the
	// same starting name.
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, start := range keys {
		visited := map[string]bool{start: true}
		chain := []string{start}
		name := start
		for {
			target, ok := aliases[name]
			if !ok {
				break
			}
			if visited[target] {
				return nil, &AliasCycleError{Kind: kind, Chain: append(chain, target)}
			}
			visited[target] = true
			chain = append(chain, target)
			name = target
		}
		flat[start] = name
	}
	return flat, nil
}

// BuildRegistry validates the config and constructs a Registry carrying
// the flattened aliases and display rules.
func (c *Config) BuildRegistry() (*model.Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	reg := model.NewRegistry()
	if c.BaseCommodity != "" {
		reg.Commodity(c.BaseCommodity)
	}
	for raw, canonical := range c.AccountAliases {
		reg.SetAccountAlias(raw, canonical)
	}
	for raw, canonical := range c.CommodityAliases {
		reg.SetCommodityAlias(raw, canonical)
	}

	names := make([]string, 0, len(c.Commodities))
	for name := range c.Commodities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cc := c.Commodities[name]
		reg.SetDisplayRule(name, model.DisplayRule{
			DecimalSeparator: cc.DecimalSeparator,
			GroupSeparator:   cc.GroupSeparator,
			Precision:        cc.Precision,
		})
	}
	return reg, nil
}
