package mapping

import (
	"fmt"

	"github.com/yuanying/epubxmeta/internal/opf"
	"github.com/yuanying/epubxmeta/internal/xmeta"
)

// Fields holds the column values of one book. Title columns hold at most
// one value.
type Fields map[string][]string

// Has reports whether column holds a non-empty value.
func (f Fields) Has(column string) bool {
	for _, v := range f[column] {
		if v != "" {
			return true
		}
	}
	return false
}

// First returns the first value of column, or "".
func (f Fields) First(column string) string {
	if len(f[column]) == 0 {
		return ""
	}
	return f[column][0]
}

// Apply copies ext into fields through prefs and returns the changed
// columns, sorted. Roles absent from ext are skipped. The authors column
// is never set. With keepExisting, columns that already hold a value are
// left alone.
func Apply(fields Fields, prefs Prefs, ext *xmeta.ExtendedMetadata, keepExisting bool) []string {
	changed := map[string]bool{}
	set := func(column string, values []string) {
		if keepExisting && fields.Has(column) {
			return
		}
		if equal(fields[column], values) {
			return
		}
		fields[column] = values
		changed[column] = true
	}

	for _, role := range sortedKeys(prefs.Contributors) {
		column := prefs.Contributors[role]
		list, ok := ext.Contributors[role]
		if column == AuthorsColumn || !ok {
			continue
		}
		set(column, append([]string(nil), list...))
	}

	for _, role := range sortedKeys(prefs.Titles) {
		title, ok := ext.Titles[role]
		if !ok || opf.Reserved(role) {
			continue
		}
		var values []string
		if title != "" {
			values = []string{title}
		}
		set(prefs.Titles[role], values)
	}

	return sortedKeys(changed)
}

// Create builds the extended metadata to embed from the column values of
// a book. Every mapped contributor role is set, empty when the column is
// empty, so embedding clears roles whose column was cleared. Titles are
// set only from non-empty columns.
func Create(fields Fields, prefs Prefs) (*xmeta.ExtendedMetadata, error) {
	ext := xmeta.New()
	for role, column := range prefs.Contributors {
		ext.Contributors[role] = append([]string{}, fields[column]...)
	}

	owner := map[string]string{}
	for _, role := range sortedKeys(prefs.Titles) {
		title := fields.First(prefs.Titles[role])
		if title == "" || opf.Reserved(role) {
			continue
		}
		if prev, ok := owner[title]; ok {
			return nil, fmt.Errorf("%w: %q is both %s and %s", ErrTitleCollision, title, prev, role)
		}
		owner[title] = role
		if ext.Titles == nil {
			ext.Titles = opf.Titles{}
		}
		ext.Titles[role] = title
	}
	return ext, nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
