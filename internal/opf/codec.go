// Package opf reads and writes contributor and title metadata in the
// metadata block of an EPUB packaging document.
package opf

import (
	"fmt"
	"sort"

	"github.com/beevik/etree"

	"github.com/yuanying/epubxmeta/internal/epub"
	"github.com/yuanying/epubxmeta/internal/names"
)

// Document is an opened packaging document. *epub.Package satisfies it.
type Document interface {
	Name() string
	Version() epub.Version
	Metadata() *etree.Element
	Languages() []string
}

// Codec converts between metadata elements and role maps.
type Codec struct {
	names names.Sorter
}

// NewCodec returns a codec computing sort keys with s. A nil s uses the
// default naming conventions.
func NewCodec(s names.Sorter) *Codec {
	if s == nil {
		s = names.Default
	}
	return &Codec{names: s}
}

// writable returns the metadata element of doc when its dialect can be
// written.
func writable(doc Document) (*etree.Element, epub.Dialect, error) {
	md := doc.Metadata()
	if md == nil {
		return nil, epub.DialectUnsupported, &epub.PackageFormatError{Path: doc.Name(), Err: epub.ErrMetadataNotFound}
	}
	dialect := doc.Version().Dialect()
	if dialect == epub.DialectUnsupported {
		return nil, dialect, &epub.PackageFormatError{
			Path: doc.Name(),
			Err:  fmt.Errorf("%w: %s", epub.ErrUnsupportedVersion, doc.Version()),
		}
	}
	return md, dialect, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
