package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// XML namespaces used by the packaging document.
const (
	NSOPF = "http://www.idpf.org/2007/opf"
	NSDC  = "http://purl.org/dc/elements/1.1/"
	NSXML = "http://www.w3.org/XML/1998/namespace"
)

const defaultVersion = "2.0"

var (
	utf8BOM           = []byte{0xEF, 0xBB, 0xBF}
	xmlCommentPattern = regexp.MustCompile(`(?s)<!--(.*?)-->`)
)

// Dialect is the packaging-document dialect a version belongs to.
type Dialect int

const (
	DialectUnsupported Dialect = iota
	DialectEPUB2
	DialectEPUB3
)

func (d Dialect) String() string {
	switch d {
	case DialectEPUB2:
		return "EPUB2"
	case DialectEPUB3:
		return "EPUB3"
	case DialectUnsupported:
		return "unsupported"
	}
	return "Dialect(" + strconv.Itoa(int(d)) + ")"
}

// Version is the declared packaging-document version.
type Version struct {
	Major int
	Minor int
}

// Dialect returns the dialect selected by the major version.
func (v Version) Dialect() Dialect {
	switch v.Major {
	case 2:
		return DialectEPUB2
	case 3:
		return DialectEPUB3
	default:
		return DialectUnsupported
	}
}

func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// ParseVersion decomposes a version attribute such as "3.0" into its major
// and minor parts. An empty value yields 2.0.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = defaultVersion
	}

	majorPart, minorPart, _ := strings.Cut(s, ".")
	major, err := strconv.Atoi(majorPart)
	if err != nil {
		return Version{}, fmt.Errorf("invalid package version %q", s)
	}

	minor := 0
	if minorPart != "" {
		// "3.0.1" keeps only the first minor component
		minorPart, _, _ = strings.Cut(minorPart, ".")
		minor, err = strconv.Atoi(minorPart)
		if err != nil {
			return Version{}, fmt.Errorf("invalid package version %q", s)
		}
	}

	return Version{Major: major, Minor: minor}, nil
}

// parseDocument parses packaging document bytes into a mutable tree.
// The parse is permissive: unescaped ampersands, unknown entities and
// comments containing "--" do not abort it.
func parseDocument(name string, data []byte) (*etree.Document, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.TrimSpace(data)
	data = removeInvalidComments(data)

	var charsetErr error
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	doc.ReadSettings.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		r, err := charset.NewReaderLabel(label, input)
		if err != nil {
			charsetErr = err
		}
		return r, err
	}

	if err := doc.ReadFromBytes(data); err != nil {
		if charsetErr != nil {
			return nil, &EncodingError{Path: name, Err: charsetErr}
		}
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) && syntaxErr.Msg == "invalid UTF-8" {
			return nil, &EncodingError{Path: name, Err: err}
		}
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	return doc, nil
}

// removeInvalidComments drops XML comments whose body contains "--".
func removeInvalidComments(data []byte) []byte {
	return xmlCommentPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		if bytes.Contains(match[4:len(match)-3], []byte("--")) {
			return nil
		}
		return match
	})
}

// IsElement reports whether el is the element local in namespace ns.
// Elements without any namespace are accepted as OPF elements.
func IsElement(el *etree.Element, ns, local string) bool {
	if el == nil || el.Tag != local {
		return false
	}
	uri := el.NamespaceURI()
	return uri == ns || (ns == NSOPF && uri == "")
}

// ChildElements returns the direct children of parent named local in
// namespace ns, in document order.
func ChildElements(parent *etree.Element, ns, local string) []*etree.Element {
	if parent == nil {
		return nil
	}
	var out []*etree.Element
	for _, child := range parent.ChildElements() {
		if IsElement(child, ns, local) {
			out = append(out, child)
		}
	}
	return out
}

// AttrValue returns the value of the attribute local in namespace ns.
// An empty ns matches only unprefixed attributes.
func AttrValue(el *etree.Element, ns, local string) (string, bool) {
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Key != local {
			continue
		}
		switch {
		case ns == "":
			if a.Space == "" {
				return a.Value, true
			}
			continue
		case ns == NSXML:
			// the xml prefix is bound implicitly
			if a.Space == "xml" {
				return a.Value, true
			}
			continue
		}
		if a.NamespaceURI() == ns {
			return a.Value, true
		}
	}
	return "", false
}

// findMetadata returns the metadata element of the package root.
func findMetadata(root *etree.Element) *etree.Element {
	if mds := ChildElements(root, NSOPF, "metadata"); len(mds) > 0 {
		return mds[0]
	}
	return nil
}
