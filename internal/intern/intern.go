// Package intern assigns small dense integer symbols to names so that
// amounts and balances can key on cheap-to-compare integers instead of
// strings. Symbols are handed out in first-seen order and never recycled
// during a run.
package intern

// Symbol identifies an interned name. Equality and ordering are plain
// integer comparison; ordering follows first-seen order.
type Symbol int32

// None is the zero Symbol; it is never assigned to a name.
const None Symbol = 0

// Table is an append-only name table. The zero Symbol is reserved so that
// a Symbol-typed field can distinguish "unset" from the first entry.
type Table struct {
	names []string
	ids   map[string]Symbol
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		names: []string{""}, // slot 0 reserved for None
		ids:   make(map[string]Symbol),
	}
}

// Intern returns the Symbol for name, assigning a new one on first sight.
func (t *Table) Intern(name string) Symbol {
	if s, ok := t.ids[name]; ok {
		return s
	}
	s := Symbol(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = s
	return s
}

// Lookup returns the Symbol for name without interning it.
func (t *Table) Lookup(name string) (Symbol, bool) {
	s, ok := t.ids[name]
	return s, ok
}

// Name returns the name assigned to s, or "" for None or an unknown Symbol.
func (t *Table) Name(s Symbol) string {
	if s <= None || int(s) >= len(t.names) {
		return ""
	}
	return t.names[s]
}

// Len returns the number of interned names.
func (t *Table) Len() int {
	return len(t.names) - 1
}
