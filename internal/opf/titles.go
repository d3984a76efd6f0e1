package opf

import (
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/yuanying/epubxmeta/internal/epub"
	"github.com/yuanying/epubxmeta/internal/names"
)

// Title roles. TitleMain and TitleDisplayed are derived when reading and
// are never written.
const (
	TitleMain       = "main"
	TitleDisplayed  = ":read:"
	TitleSubtitle   = "subtitle"
	TitleShort      = "short"
	TitleEdition    = "edition"
	TitleExpanded   = "expanded"
	TitleCollection = "collection"
)

const displaySeparator = ": "

// WritableTitleRoles lists the title roles a caller may set.
var WritableTitleRoles = []string{TitleSubtitle, TitleShort, TitleEdition, TitleExpanded, TitleCollection}

// Titles maps a title role to its text.
type Titles map[string]string

// Reserved reports whether role is derived and never written.
func Reserved(role string) bool {
	return role == TitleMain || role == TitleDisplayed
}

// Roles returns the title roles of t, sorted.
func (t Titles) Roles() []string {
	return sortedKeys(t)
}

// Clone returns a copy of t.
func (t Titles) Clone() Titles {
	out := make(Titles, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ReadTitles extracts the titles of an EPUB 3 document keyed by title
// type, plus the derived main and displayed titles. Other versions yield
// nil.
func (c *Codec) ReadTitles(doc Document) Titles {
	md := doc.Metadata()
	if md == nil || doc.Version().Dialect() != epub.DialectEPUB3 {
		return nil
	}

	out := Titles{}
	refs := newRefinements(md)
	titles := epub.ChildElements(md, epub.NSDC, "title")

	main := findMainTitle(titles, refs)
	if main != nil {
		out[TitleMain] = names.Clean(text(main))
	}
	sub := findSubtitle(titles, refs)
	if sub != nil {
		out[TitleSubtitle] = names.Clean(text(sub))
	}

	for _, el := range titles {
		if el == sub {
			continue
		}
		id := elementID(el)
		value := names.Clean(text(el))
		if id == "" || value == "" {
			continue
		}
		for _, m := range refs.property(id, propTitleType) {
			role := strings.TrimSpace(text(m))
			if role == "" || Reserved(role) {
				continue
			}
			if _, ok := out[role]; !ok {
				out[role] = value
			}
		}
	}

	if displayed := displayTitle(titles, refs, main, sub); displayed != "" {
		out[TitleDisplayed] = displayed
	}
	return out
}

// WriteTitles merges target into the titles of an EPUB 3 document and
// rewrites the typed dc:title elements. The main title element is kept
// and roles mapped to an empty string are not written. Other versions are
// left untouched.
func (c *Codec) WriteTitles(doc Document, target Titles) error {
	md, dialect, err := writable(doc)
	if err != nil {
		return err
	}
	if dialect != epub.DialectEPUB3 {
		return nil
	}

	merged := c.ReadTitles(doc)
	delete(merged, TitleMain)
	delete(merged, TitleDisplayed)
	for role, value := range target {
		role = strings.TrimSpace(role)
		if role == "" || Reserved(role) {
			continue
		}
		merged[role] = value
	}

	refs := newRefinements(md)
	titles := epub.ChildElements(md, epub.NSDC, "title")
	main := findMainTitle(titles, refs)
	for _, el := range titles {
		id := elementID(el)
		if id == "" {
			continue
		}
		if el == main {
			keepMainTitle(el, refs[id], merged)
			continue
		}
		removeTypedTitle(el, refs[id])
	}

	lang := ""
	if langs := doc.Languages(); len(langs) > 0 {
		lang = langs[0]
	}

	b := newBuilder(md)
	ids := newIDGenerator(md)
	cur := cursorAfterLast(md, epub.NSDC, "title")
	for _, role := range merged.Roles() {
		value := names.Clean(merged[role])
		if value == "" {
			continue
		}
		id := ids.reserve("title-" + role)
		el := b.dc("title", value)
		el.CreateAttr("id", id)
		cur.insert(el)
		cur.insert(b.meta(id, propFileAs, c.names.TitleSort(value, lang)))
		cur.insert(b.meta(id, propTitleType, role))
	}
	return nil
}

// removeTypedTitle drops the title-type refinements of a title and deletes
// the title itself when only a file-as refinement remains. Untyped titles
// and titles typed "main" are left alone.
func removeTypedTitle(el *etree.Element, metas []*etree.Element) {
	var types, fileAs, others []*etree.Element
	for _, m := range metas {
		switch metaProperty(m) {
		case propTitleType:
			if strings.TrimSpace(text(m)) == TitleMain {
				return
			}
			types = append(types, m)
		case propFileAs:
			fileAs = append(fileAs, m)
		default:
			others = append(others, m)
		}
	}
	if len(types) == 0 {
		return
	}

	for _, m := range types {
		remove(m)
	}
	if len(others) > 0 {
		return
	}
	remove(el)
	for _, m := range fileAs {
		remove(m)
	}
}

// keepMainTitle leaves the main title element in place. A type it carries
// is kept while merged still maps that type to the same text, and the
// role is then dropped from merged. Otherwise the type is removed so the
// role can be written to a new element.
func keepMainTitle(el *etree.Element, metas []*etree.Element, merged Titles) {
	value := names.Clean(text(el))
	for _, m := range metas {
		if metaProperty(m) != propTitleType {
			continue
		}
		role := strings.TrimSpace(text(m))
		if Reserved(role) {
			continue
		}
		if names.Clean(merged[role]) == value {
			delete(merged, role)
			continue
		}
		remove(m)
	}
}

// findMainTitle returns the first non-empty title typed "main", or the
// first non-empty title when none is.
func findMainTitle(titles []*etree.Element, refs refinements) *etree.Element {
	var first *etree.Element
	for _, el := range titles {
		if strings.TrimSpace(text(el)) == "" {
			continue
		}
		if first == nil {
			first = el
		}
		if id := elementID(el); id != "" && refs.value(id, propTitleType) == TitleMain {
			return el
		}
	}
	return first
}

// findSubtitle returns the first non-empty title whose type names a
// subtitle.
func findSubtitle(titles []*etree.Element, refs refinements) *etree.Element {
	for _, el := range titles {
		id := elementID(el)
		if id == "" || strings.TrimSpace(text(el)) == "" {
			continue
		}
		typ := refs.value(id, propTitleType)
		if strings.Contains(typ, "subtitle") || strings.Contains(typ, "sub-title") {
			return el
		}
	}
	return nil
}

// displayTitle assembles the title as a reading system shows it: titles
// with a display-seq in sequence order, or else the main title followed by
// the subtitle.
func displayTitle(titles []*etree.Element, refs refinements, main, sub *etree.Element) string {
	type seqTitle struct {
		seq  int
		text string
	}
	var seq []seqTitle
	for _, el := range titles {
		id := elementID(el)
		value := names.Clean(text(el))
		if id == "" || value == "" {
			continue
		}
		n, err := strconv.Atoi(refs.value(id, propDisplaySeq))
		if err != nil {
			continue
		}
		seq = append(seq, seqTitle{seq: n, text: value})
	}

	if len(seq) > 0 {
		sort.SliceStable(seq, func(i, j int) bool { return seq[i].seq < seq[j].seq })
		parts := make([]string, len(seq))
		for i, s := range seq {
			parts[i] = s.text
		}
		return strings.Join(parts, displaySeparator)
	}

	if main == nil {
		return ""
	}
	displayed := names.Clean(text(main))
	if sub != nil && sub != main {
		displayed += displaySeparator + names.Clean(text(sub))
	}
	return displayed
}
