// Package model holds the core bookkeeping data model: interned commodity
// and account identifiers, multi-commodity amounts, transaction fragments
// as handed over by the parser and importer collaborators, and committed
// transactions as produced by the booking engine.
package model

import (
	"strings"

	"github.com/tallybook-dev/tallybook/internal/intern"
)

// CommodityID identifies an interned commodity. Identity is the integer
// tag; equality and ordering are integer comparison.
type CommodityID intern.Symbol

// AccountID identifies an interned hierarchical account name.
type AccountID intern.Symbol

// NoCommodity is the zero CommodityID, meaning "no commodity".
const NoCommodity CommodityID = CommodityID(intern.None)

// DisplayRule controls locale-aware rendering for one commodity.
type DisplayRule struct {
	DecimalSeparator string // defaults to "."
	GroupSeparator   string // "" = no grouping
	Precision        int32  // rendered decimal places
}

// Registry owns the commodity and account name tables plus the flattened
// alias maps resolved at configuration-load time. All raw names coming
// from fragments pass through here before any arithmetic.
type Registry struct {
	commodities *intern.Table
	accounts    *intern.Table

	commodityAliases map[string]string // raw -> canonical, already flattened
	accountAliases   map[string]string
	displays         map[CommodityID]DisplayRule
}

// NewRegistry creates a Registry with no aliases and no display rules.
func NewRegistry() *Registry {
	return &Registry{
		commodities:      intern.NewTable(),
		accounts:         intern.NewTable(),
		commodityAliases: make(map[string]string),
		accountAliases:   make(map[string]string),
		displays:         make(map[CommodityID]DisplayRule),
	}
}

// SetCommodityAlias maps a raw commodity name to its canonical name.
// The mapping must already be flattened (no alias-of-alias chains).
func (r *Registry) SetCommodityAlias(raw, canonical string) {
	r.commodityAliases[raw] = canonical
}

// SetAccountAlias maps a raw account name to its canonical name.
func (r *Registry) SetAccountAlias(raw, canonical string) {
	r.accountAliases[raw] = canonical
}

// SetDisplayRule attaches a rendering rule to a commodity.
func (r *Registry) SetDisplayRule(name string, rule DisplayRule) {
	r.displays[r.Commodity(name)] = rule
}

// DisplayRuleFor returns the rendering rule for a commodity, falling back
// to a plain two-decimal rule.
func (r *Registry) DisplayRuleFor(c CommodityID) DisplayRule {
	if rule, ok := r.displays[c]; ok {
		if rule.DecimalSeparator == "" {
			rule.DecimalSeparator = "."
		}
		return rule
	}
	return DisplayRule{DecimalSeparator: ".", Precision: 2}
}

// Commodity resolves a raw commodity name through the alias map and
// interns the canonical name.
func (r *Registry) Commodity(name string) CommodityID {
	if canonical, ok := r.commodityAliases[name]; ok {
		name = canonical
	}
	return CommodityID(r.commodities.Intern(name))
}

// Account resolves a raw account name through the alias map and interns
// the canonical name.
func (r *Registry) Account(name string) AccountID {
	if canonical, ok := r.accountAliases[name]; ok {
		name = canonical
	}
	return AccountID(r.accounts.Intern(name))
}

// CommodityName returns the canonical name for c.
func (r *Registry) CommodityName(c CommodityID) string {
	return r.commodities.Name(intern.Symbol(c))
}

// AccountName returns the canonical name for a.
func (r *Registry) AccountName(a AccountID) string {
	return r.accounts.Name(intern.Symbol(a))
}

// Commodities returns the number of interned commodities.
func (r *Registry) Commodities() int { return r.commodities.Len() }

// Accounts returns the number of interned accounts.
func (r *Registry) Accounts() int { return r.accounts.Len() }

// AccountUnder reports whether account a equals ancestor or sits inside
// its subtree. "Assets:Bank:Checking" is under "Assets" and "Assets:Bank"
// but not under "Asset".
func (r *Registry) AccountUnder(a AccountID, ancestor string) bool {
	name := r.AccountName(a)
	if name == ancestor {
		return true
	}
	return strings.HasPrefix(name, ancestor+":")
}
