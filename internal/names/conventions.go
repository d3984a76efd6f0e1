// Package names implements the naming conventions used when contributor
// and title metadata is written: splitting author lists, computing author
// and title sort keys, and normalising whitespace.
package names

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sorter computes the sort keys and name lists the codecs need.
type Sorter interface {
	SplitAuthors(raw string) []string
	AuthorSort(name string) string
	TitleSort(title, lang string) string
}

// Conventions holds the word lists that drive AuthorSort.
type Conventions struct {
	// CopyWords mark corporate names, which are never inverted.
	CopyWords []string
	// NamePrefixes are honorifics skipped before the first name.
	NamePrefixes []string
	// NameSuffixes are kept after the inverted name.
	NameSuffixes []string
	// UseSurnamePrefixes joins particles such as "van" to the surname.
	UseSurnamePrefixes bool
	SurnamePrefixes    []string
}

// Default is the convention set used by the package-level helpers.
var Default = NewConventions()

// NewConventions returns conventions with the standard word lists.
func NewConventions() *Conventions {
	return &Conventions{
		CopyWords:       defaultCopyWords,
		NamePrefixes:    defaultNamePrefixes,
		NameSuffixes:    defaultNameSuffixes,
		SurnamePrefixes: defaultSurnamePrefixes,
	}
}

// SplitAuthors implements Sorter.
func (c *Conventions) SplitAuthors(raw string) []string {
	return SplitAuthors(raw)
}

// TitleSort implements Sorter.
func (c *Conventions) TitleSort(title, lang string) string {
	return TitleSort(title, lang)
}

// Clean composes the text to NFC and collapses runs of whitespace into a
// single space.
func Clean(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
