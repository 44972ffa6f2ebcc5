package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SourceRef points a committed transaction back at its input fragment for
// diagnostics, e.g. "books/2024.journal:17".
type SourceRef struct {
	File string
	Line int
}

// String renders the reference as "file:line", or just the file when the
// line is unknown.
func (s SourceRef) String() string {
	if s.File == "" && s.Line == 0 {
		return "<unknown>"
	}
	if s.Line == 0 {
		return s.File
	}
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// ParseSourceRef parses "file:line" back into a SourceRef. A reference
// without a numeric suffix is treated as a bare file name.
func ParseSourceRef(s string) SourceRef {
	if s == "" || s == "<unknown>" {
		return SourceRef{}
	}
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return SourceRef{File: s}
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return SourceRef{File: s}
	}
	return SourceRef{File: s[:i], Line: line}
}
