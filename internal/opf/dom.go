package opf

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/yuanying/epubxmeta/internal/epub"
)

// cursor inserts tokens into parent one after another.
type cursor struct {
	parent *etree.Element
	index  int
}

// cursorAfterLast returns a cursor placed right after the last child of md
// named local in namespace ns, or at the start of md if there is none.
func cursorAfterLast(md *etree.Element, ns, local string) *cursor {
	c := &cursor{parent: md}
	if els := epub.ChildElements(md, ns, local); len(els) > 0 {
		c.index = els[len(els)-1].Index() + 1
	}
	return c
}

func (c *cursor) insert(el *etree.Element) {
	c.parent.InsertChildAt(c.index, el)
	c.index++
}

// builder creates metadata elements with prefixes valid in md's scope.
type builder struct {
	md        *etree.Element
	dcPrefix  string
	metaTag   string
	opfPrefix string // attribute prefix, resolved on first use
}

func newBuilder(md *etree.Element) *builder {
	b := &builder{md: md}
	b.dcPrefix = ensurePrefix(md, epub.NSDC, "dc")
	b.metaTag = "meta"
	if uri, declared := defaultNamespace(md); declared && uri != epub.NSOPF {
		b.metaTag = qualify(ensurePrefix(md, epub.NSOPF, "opf"), "meta")
	}
	return b
}

// dc creates a Dublin Core element holding text.
func (b *builder) dc(local, text string) *etree.Element {
	el := etree.NewElement(qualify(b.dcPrefix, local))
	el.SetText(text)
	return el
}

// meta creates a refinement of the element with the given id.
func (b *builder) meta(id, property, text string) *etree.Element {
	el := etree.NewElement(b.metaTag)
	el.CreateAttr("refines", "#"+id)
	el.CreateAttr("property", property)
	el.SetText(text)
	return el
}

// opfAttr returns the qualified name of an OPF attribute.
func (b *builder) opfAttr(local string) string {
	if b.opfPrefix == "" {
		b.opfPrefix = ensurePrefix(b.md, epub.NSOPF, "opf")
	}
	return qualify(b.opfPrefix, local)
}

// ensurePrefix returns a non-empty prefix bound to uri in the scope of el,
// declaring preferred on el when none is bound.
func ensurePrefix(el *etree.Element, uri, preferred string) string {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Space == "xmlns" && a.Value == uri {
				return a.Key
			}
		}
	}

	prefix := preferred
	for n := 2; prefixBound(el, prefix); n++ {
		prefix = preferred + strconv.Itoa(n)
	}
	el.CreateAttr("xmlns:"+prefix, uri)
	return prefix
}

func prefixBound(el *etree.Element, prefix string) bool {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Space == "xmlns" && a.Key == prefix {
				return true
			}
		}
	}
	return false
}

// defaultNamespace returns the default namespace in scope of el and
// whether one is declared at all.
func defaultNamespace(el *etree.Element) (string, bool) {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Space == "" && a.Key == "xmlns" {
				return a.Value, true
			}
		}
	}
	return "", false
}

func qualify(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// elementID returns the trimmed id attribute of el.
func elementID(el *etree.Element) string {
	id, _ := epub.AttrValue(el, "", "id")
	return strings.TrimSpace(id)
}

// text returns the character data of el and its descendants.
func text(el *etree.Element) string {
	var sb strings.Builder
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			sb.WriteString(v.Data)
		case *etree.Element:
			sb.WriteString(text(v))
		}
	}
	return sb.String()
}

func remove(el *etree.Element) {
	if parent := el.Parent(); parent != nil {
		parent.RemoveChild(el)
	}
}
