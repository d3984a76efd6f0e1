// Package mapping moves extended metadata between EPUB files and a
// library's per-book columns.
package mapping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yuanying/epubxmeta/internal/marc"
	"github.com/yuanying/epubxmeta/internal/opf"
)

// Built-in library columns.
const (
	AuthorsColumn = "authors"
	TitleColumn   = "title"
)

var (
	ErrColumnReused   = errors.New("column mapped more than once")
	ErrTitleCollision = errors.New("two title roles share the same title")
	ErrReservedTitle  = errors.New("title role is derived and cannot be mapped")
)

// Prefs maps contributor roles and title roles to library columns.
type Prefs struct {
	// Contributors maps a relator code to a column.
	Contributors map[string]string
	// Titles maps a title role to a column.
	Titles map[string]string
	// LinkAuthors maps the aut role to the library's own authors column.
	LinkAuthors bool
	// KeepManual keeps non-empty columns on manual imports.
	KeepManual bool
	// KeepAuto keeps non-empty columns when a book is added.
	KeepAuto bool
}

// Sanitize returns a copy of p without unknown roles, empty column names
// and columns missing from the library. known reports whether a column
// exists. With LinkAuthors set, aut is mapped to AuthorsColumn.
func (p Prefs) Sanitize(known func(column string) bool) Prefs {
	out := p
	out.Contributors = map[string]string{}
	out.Titles = map[string]string{}

	for role, column := range p.Contributors {
		if role == "" || !marc.Valid(role) || column == "" || !known(column) {
			continue
		}
		out.Contributors[role] = column
	}
	for role, column := range p.Titles {
		if opf.Reserved(role) || column == "" || !known(column) {
			continue
		}
		out.Titles[role] = column
	}

	if p.LinkAuthors {
		out.Contributors[marc.Author] = AuthorsColumn
	}
	return out
}

// Validate checks that no column is targeted twice and that no derived
// title role is mapped.
func (p Prefs) Validate() error {
	used := map[string]string{}
	claim := func(column, owner string) error {
		if prev, ok := used[column]; ok {
			return fmt.Errorf("%w: %q by %s and %s", ErrColumnReused, column, prev, owner)
		}
		used[column] = owner
		return nil
	}

	for _, role := range sortedKeys(p.Contributors) {
		column := p.Contributors[role]
		if column == AuthorsColumn {
			continue
		}
		if err := claim(column, "contributor "+role); err != nil {
			return err
		}
	}
	for _, role := range sortedKeys(p.Titles) {
		if opf.Reserved(role) {
			return fmt.Errorf("%w: %s", ErrReservedTitle, role)
		}
		if err := claim(p.Titles[role], "title "+role); err != nil {
			return err
		}
	}
	return nil
}

// Columns returns every column p writes to, sorted.
func (p Prefs) Columns() []string {
	seen := map[string]bool{}
	for _, c := range p.Contributors {
		seen[c] = true
	}
	for _, c := range p.Titles {
		seen[c] = true
	}
	return sortedKeys(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
