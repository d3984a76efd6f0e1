package names

import (
	"regexp"
	"strings"
)

// ampersand placeholder used while splitting, "&&" stands for a literal "&"
const escapedAmpersand = "\uffff"

var (
	authorSplitPattern = regexp.MustCompile(`(?i),?\s+(and|with)\s+`)
	bracketedPattern   = regexp.MustCompile(`[\[({].*?[\])}]`)
)

var (
	defaultCopyWords = []string{
		"agency", "corporation", "company", "co.", "council", "committee",
		"inc.", "institute", "national", "society", "club", "team",
	}
	defaultNamePrefixes    = []string{"mr", "mrs", "ms", "dr", "prof"}
	defaultNameSuffixes    = []string{"jr", "sr", "inc", "ph.d", "phd", "md", "m.d", "i", "ii", "iii", "iv", "junior", "senior"}
	defaultSurnamePrefixes = []string{"da", "de", "di", "la", "le", "van", "von", "der", "den"}
)

// SplitAuthors splits a free-text list of names on "&" and on the
// conjunctions "and"/"with". A doubled "&&" is kept as a literal ampersand.
func SplitAuthors(raw string) []string {
	raw = Clean(raw)
	if raw == "" {
		return nil
	}

	raw = strings.ReplaceAll(raw, "&&", escapedAmpersand)
	raw = authorSplitPattern.ReplaceAllString(raw, "&")

	var authors []string
	for _, a := range strings.Split(raw, "&") {
		a = strings.TrimSpace(strings.ReplaceAll(a, escapedAmpersand, "&"))
		if a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}

// JoinAuthors is the inverse of SplitAuthors for display.
func JoinAuthors(authors []string) string {
	escaped := make([]string, 0, len(authors))
	for _, a := range authors {
		escaped = append(escaped, strings.ReplaceAll(a, "&", "&&"))
	}
	return strings.Join(escaped, " & ")
}

// AuthorSort computes the "file-as" form of a single name using the
// default conventions.
func AuthorSort(name string) string {
	return Default.AuthorSort(name)
}

// AuthorSort inverts a name into "Last, First" form. Names that already
// contain a comma, single-word names, and corporate names are returned as
// they are.
func (c *Conventions) AuthorSort(name string) string {
	name = Clean(name)
	if name == "" {
		return ""
	}

	stripped := strings.TrimSpace(bracketedPattern.ReplaceAllString(name, ""))
	if strings.Contains(stripped, ",") {
		return name
	}

	tokens := strings.Fields(stripped)
	if len(tokens) < 2 {
		return name
	}

	copyWords := wordSet(c.CopyWords, false)
	for _, tok := range tokens {
		if copyWords[strings.ToLower(tok)] {
			return name
		}
	}

	prefixes := wordSet(c.NamePrefixes, true)
	first := 0
	for first < len(tokens) && prefixes[strings.ToLower(tokens[first])] {
		first++
	}
	if first == len(tokens) {
		return name
	}

	suffixes := wordSet(c.NameSuffixes, true)
	last := len(tokens) - 1
	for last >= first && suffixes[strings.ToLower(tokens[last])] {
		last--
	}
	if last < first {
		return name
	}
	suffix := strings.Join(tokens[last+1:], " ")

	if c.UseSurnamePrefixes && last > first {
		surnamePrefixes := wordSet(c.SurnamePrefixes, false)
		if surnamePrefixes[strings.ToLower(tokens[last-1])] {
			tokens[last-1] += " " + tokens[last]
			last--
		}
	}

	parts := append([]string{tokens[last]}, tokens[first:last]...)
	if len(parts) > 1 {
		parts[0] += ","
	}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, " ")
}

// wordSet lowercases words into a set, optionally adding the dotted form
// of each word.
func wordSet(words []string, dotted bool) map[string]bool {
	set := make(map[string]bool, len(words)*2)
	for _, w := range words {
		w = strings.ToLower(w)
		set[w] = true
		if dotted {
			set[w+"."] = true
		}
	}
	return set
}
