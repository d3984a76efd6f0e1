package opf

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/yuanying/epubxmeta/internal/epub"
)

// Refinement properties.
const (
	propRole       = "role"
	propFileAs     = "file-as"
	propTitleType  = "title-type"
	propDisplaySeq = "display-seq"

	schemeMARC = "marc:relators"
)

// refinements indexes the meta elements of a metadata block by the id
// they refine, in document order.
type refinements map[string][]*etree.Element

func newRefinements(md *etree.Element) refinements {
	r := refinements{}
	for _, m := range epub.ChildElements(md, epub.NSOPF, "meta") {
		ref, _ := epub.AttrValue(m, "", "refines")
		ref = strings.TrimSpace(ref)
		if !strings.HasPrefix(ref, "#") || len(ref) == 1 {
			continue
		}
		r[ref[1:]] = append(r[ref[1:]], m)
	}
	return r
}

// property returns the metas refining id with the given property.
func (r refinements) property(id, prop string) []*etree.Element {
	var out []*etree.Element
	for _, m := range r[id] {
		if metaProperty(m) == prop {
			out = append(out, m)
		}
	}
	return out
}

// value returns the trimmed text of the first meta refining id with the
// given property.
func (r refinements) value(id, prop string) string {
	if metas := r.property(id, prop); len(metas) > 0 {
		return strings.TrimSpace(text(metas[0]))
	}
	return ""
}

// roleMetas returns the MARC relator role metas refining id.
func (r refinements) roleMetas(id string) []*etree.Element {
	var out []*etree.Element
	for _, m := range r[id] {
		if isRoleMeta(m) {
			out = append(out, m)
		}
	}
	return out
}

func isRoleMeta(m *etree.Element) bool {
	scheme, _ := epub.AttrValue(m, "", "scheme")
	return metaProperty(m) == propRole && strings.TrimSpace(scheme) == schemeMARC
}

func metaProperty(m *etree.Element) string {
	prop, _ := epub.AttrValue(m, "", "property")
	return strings.TrimSpace(prop)
}

// idGenerator hands out ids not used anywhere in the document.
type idGenerator struct {
	taken map[string]bool
	next  map[string]int
}

// newIDGenerator collects the ids present in the document holding el.
func newIDGenerator(el *etree.Element) *idGenerator {
	g := &idGenerator{taken: map[string]bool{}, next: map[string]int{}}
	root := el
	for root.Parent() != nil {
		root = root.Parent()
	}
	g.collect(root)
	return g
}

func (g *idGenerator) collect(el *etree.Element) {
	if id := elementID(el); id != "" {
		g.taken[id] = true
	}
	for _, child := range el.ChildElements() {
		g.collect(child)
	}
}

// sequence returns the next free id of the form "{prefix}-{NN}". Numbers
// start at 1 for each prefix.
func (g *idGenerator) sequence(prefix string) string {
	for {
		g.next[prefix]++
		id := fmt.Sprintf("%s-%02d", prefix, g.next[prefix])
		if !g.taken[id] {
			g.taken[id] = true
			return id
		}
	}
}

// reserve returns id when it is free, or the first free "{id}-{NN}".
func (g *idGenerator) reserve(id string) string {
	if !g.taken[id] {
		g.taken[id] = true
		return id
	}
	return g.sequence(id)
}
