package opf

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/yuanying/epubxmeta/internal/epub"
	"github.com/yuanying/epubxmeta/internal/marc"
	"github.com/yuanying/epubxmeta/internal/names"
)

// Contributors maps a relator code to the names holding that role, in
// document order.
type Contributors map[string][]string

// add appends names to role, skipping empty and already present names.
func (c Contributors) add(role string, list ...string) {
	for _, name := range list {
		name = names.Clean(name)
		if name == "" || c.has(role, name) {
			continue
		}
		c[role] = append(c[role], name)
	}
}

// wantedBeyond reports whether name holds a role in c that covered does
// not already give it.
func (c Contributors) wantedBeyond(name string, covered Contributors) bool {
	for role := range c {
		if c.has(role, name) && !covered.has(role, name) {
			return true
		}
	}
	return false
}

func (c Contributors) has(role, name string) bool {
	for _, n := range c[role] {
		if n == name {
			return true
		}
	}
	return false
}

// Roles returns the role codes of c, sorted.
func (c Contributors) Roles() []string {
	return sortedKeys(c)
}

// Clone returns a deep copy of c.
func (c Contributors) Clone() Contributors {
	out := make(Contributors, len(c))
	for role, list := range c {
		out[role] = append([]string(nil), list...)
	}
	return out
}

var contributorTags = []struct {
	local string
	role  string
}{
	{"creator", marc.Author},
	{"contributor", marc.Other},
}

// ReadContributors extracts the role map of doc from its dc:creator and
// dc:contributor elements. Documents without metadata, or of an
// unsupported version, yield an empty map.
func (c *Codec) ReadContributors(doc Document) Contributors {
	out := Contributors{}
	md := doc.Metadata()
	if md == nil {
		return out
	}

	dialect := doc.Version().Dialect()
	for _, tag := range contributorTags {
		c.collect(out, md, dialect, tag.local, tag.role)
	}
	return out
}

// collect adds the names of every md child named local to out.
func (c *Codec) collect(out Contributors, md *etree.Element, dialect epub.Dialect, local, defaultRole string) {
	var refs refinements
	if dialect == epub.DialectEPUB3 {
		refs = newRefinements(md)
	}

	for _, el := range epub.ChildElements(md, epub.NSDC, local) {
		var roles []string
		switch dialect {
		case epub.DialectEPUB2:
			roles = []string{inlineRole(el, defaultRole)}
		case epub.DialectEPUB3:
			roles = refinedRoles(el, refs, defaultRole)
		default:
			return
		}

		for _, name := range c.names.SplitAuthors(text(el)) {
			for _, role := range roles {
				out.add(role, name)
			}
		}
	}
}

// inlineRole returns the opf:role attribute of an EPUB 2 element.
func inlineRole(el *etree.Element, defaultRole string) string {
	role, _ := epub.AttrValue(el, epub.NSOPF, "role")
	if role = strings.TrimSpace(role); role != "" {
		return role
	}
	return defaultRole
}

// refinedRoles returns the roles attached to an EPUB 3 element through
// role metas. Elements without an id only carry the default role.
func refinedRoles(el *etree.Element, refs refinements, defaultRole string) []string {
	id := elementID(el)
	if id == "" {
		return []string{defaultRole}
	}

	metas := refs.roleMetas(id)
	if len(metas) == 0 {
		return []string{defaultRole}
	}

	roles := make([]string, 0, len(metas))
	for _, m := range metas {
		role := strings.TrimSpace(text(m))
		if role == "" {
			role = defaultRole
		}
		roles = append(roles, role)
	}
	return roles
}

// WriteContributors merges target into the contributors of doc and
// rewrites the dc:contributor elements. Roles absent from target keep their
// current names; a role mapped to an empty list loses its contributors.
// Names already carried by a dc:creator with the same role are not
// repeated as contributors.
func (c *Codec) WriteContributors(doc Document, target Contributors) error {
	md, dialect, err := writable(doc)
	if err != nil {
		return err
	}

	merged := c.ReadContributors(doc)
	for role, list := range target {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		delete(merged, role)
		merged.add(role, list...)
		if _, ok := merged[role]; !ok {
			merged[role] = nil
		}
	}

	creators := Contributors{}
	c.collect(creators, md, dialect, "creator", marc.Author)

	switch dialect {
	case epub.DialectEPUB2:
		c.writeEPUB2(md, merged, creators)
	case epub.DialectEPUB3:
		c.writeEPUB3(md, merged, creators)
	}
	return nil
}

func (c *Codec) writeEPUB2(md *etree.Element, merged, creators Contributors) {
	roles := merged.Roles()
	for _, role := range roles {
		for _, el := range epub.ChildElements(md, epub.NSDC, "contributor") {
			if inlineRole(el, marc.Other) == role {
				remove(el)
			}
		}
	}

	b := newBuilder(md)
	cur := cursorAfterLast(md, epub.NSDC, "creator")
	for _, role := range roles {
		for _, name := range merged[role] {
			if creators.has(role, name) {
				continue
			}
			el := b.dc("contributor", name)
			el.CreateAttr(b.opfAttr("role"), role)
			el.CreateAttr(b.opfAttr("file-as"), c.names.AuthorSort(name))
			cur.insert(el)
		}
	}
}

func (c *Codec) writeEPUB3(md *etree.Element, merged, creators Contributors) {
	// contributors refined by more than role and file-as are kept when
	// their name is still wanted, so those refinements survive
	reused := map[string]string{}
	refs := newRefinements(md)
	for _, el := range epub.ChildElements(md, epub.NSDC, "contributor") {
		id := elementID(el)
		if id == "" {
			remove(el)
			continue
		}

		var fileAs, others []*etree.Element
		for _, m := range refs[id] {
			switch {
			case isRoleMeta(m):
				remove(m)
			case metaProperty(m) == propFileAs:
				fileAs = append(fileAs, m)
			default:
				others = append(others, m)
			}
		}

		if len(others) > 0 {
			list := c.names.SplitAuthors(text(el))
			if len(list) == 1 && merged.wantedBeyond(list[0], creators) && reused[list[0]] == "" {
				reused[list[0]] = id
				continue
			}
		}

		remove(el)
		for _, m := range fileAs {
			remove(m)
		}
		for _, m := range others {
			remove(m)
		}
	}

	b := newBuilder(md)
	ids := newIDGenerator(md)
	cur := cursorAfterLast(md, epub.NSDC, "creator")

	roles := merged.Roles()
	roleIDs := make(map[string][]string, len(roles))
	for _, role := range roles {
		for _, name := range merged[role] {
			if creators.has(role, name) {
				continue
			}
			if id, ok := reused[name]; ok {
				roleIDs[role] = append(roleIDs[role], id)
				continue
			}
			id := ids.sequence(role)
			el := b.dc("contributor", name)
			el.CreateAttr("id", id)
			cur.insert(el)
			cur.insert(b.meta(id, propFileAs, c.names.AuthorSort(name)))
			roleIDs[role] = append(roleIDs[role], id)
		}
	}

	for _, role := range roles {
		for _, id := range roleIDs[role] {
			m := b.meta(id, propRole, role)
			m.CreateAttr("scheme", schemeMARC)
			cur.insert(m)
		}
	}
}
