// Package importer turns structured bank export files into transaction
// fragments, the same shape the parser collaborator produces. Parsers
// may populate the secondary-commodity hint and request commodity
// renaming; booking itself treats imported fragments like any others.
package importer

import (
	"io"
	"sort"
	"strings"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// Options configures how a parser maps bank rows onto fragments.
type Options struct {
	// AssetAccount receives the bank side of every imported entry.
	AssetAccount string
	// DefaultExpense receives debits that no rule matched.
	DefaultExpense string
	// DefaultIncome receives credits that no rule matched.
	DefaultIncome string
	// Commodity names the export's currency.
	Commodity string
	// RenameCommodity maps the export's currency names to canonical
	// ones, for exports that spell currencies their own way.
	RenameCommodity map[string]string
	// SecondaryCommodity is forwarded as a matching hint on every
	// produced fragment.
	SecondaryCommodity string
}

// Parser converts a bank export stream into fragments.
type Parser interface {
	Parse(r io.Reader, opts Options) ([]*model.Fragment, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// Formats returns the registered format names.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&BankCSVParser{})
	return r
}
