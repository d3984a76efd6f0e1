package epub

// Summary is a read-only digest of the package metadata, used to label a
// book when it is registered with a library.
type Summary struct {
	Version    Version
	Title      string
	Creators   []Creator
	Language   string
	Identifier string
	Publisher  string
}

// Creator represents a dc:creator of the book
type Creator struct {
	Name   string
	Role   string // e.g., "aut" for author, "edt" for editor
	FileAs string
	Lang   string // xml:lang attribute
}

// Authors returns the names of creators whose role is "aut" or unset.
func (s *Summary) Authors() []string {
	var names []string
	for _, c := range s.Creators {
		if c.Role == "" || c.Role == "aut" {
			names = append(names, c.Name)
		}
	}
	return names
}
