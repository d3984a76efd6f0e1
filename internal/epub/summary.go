package epub

import (
	"strings"

	"github.com/beevik/etree"
)

// Summary builds a digest of the package metadata.
func (p *Package) Summary() *Summary {
	s := &Summary{Version: p.version}
	md := p.metadata
	if md == nil {
		return s
	}

	// Title (use first non-empty one)
	for _, t := range ChildElements(md, NSDC, "title") {
		if text := strings.TrimSpace(t.Text()); text != "" {
			s.Title = text
			break
		}
	}

	// Language (use first one)
	if langs := p.Languages(); len(langs) > 0 {
		s.Language = langs[0]
	}

	// Identifier (find the one marked as unique-identifier)
	uniqueID := p.doc.Root().SelectAttrValue("unique-identifier", "")
	ids := ChildElements(md, NSDC, "identifier")
	for _, id := range ids {
		if uniqueID != "" && id.SelectAttrValue("id", "") == uniqueID {
			s.Identifier = strings.TrimSpace(id.Text())
			break
		}
	}
	// If not found, use first one
	if s.Identifier == "" && len(ids) > 0 {
		s.Identifier = strings.TrimSpace(ids[0].Text())
	}

	// Publisher (use first one)
	if pubs := ChildElements(md, NSDC, "publisher"); len(pubs) > 0 {
		s.Publisher = strings.TrimSpace(pubs[0].Text())
	}

	for _, el := range ChildElements(md, NSDC, "creator") {
		c := Creator{Name: strings.TrimSpace(el.Text())}
		c.Role, _ = AttrValue(el, NSOPF, "role")
		c.FileAs, _ = AttrValue(el, NSOPF, "file-as")
		c.Lang, _ = AttrValue(el, NSXML, "lang")
		if id := el.SelectAttrValue("id", ""); id != "" {
			refineCreator(&c, md, id)
		}
		s.Creators = append(s.Creators, c)
	}

	return s
}

// refineCreator applies EPUB 3.0 meta refinements to a creator.
func refineCreator(c *Creator, md *etree.Element, id string) {
	for _, m := range ChildElements(md, NSOPF, "meta") {
		if m.SelectAttrValue("refines", "") != "#"+id {
			continue
		}
		value := strings.TrimSpace(m.Text())
		switch m.SelectAttrValue("property", "") {
		case "role":
			if c.Role == "" {
				c.Role = value
			}
		case "file-as":
			c.FileAs = value
		}
	}
}
