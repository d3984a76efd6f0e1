package names

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// leading characters dropped before looking for an article
const ignoredStarts = `'"‘’‚‛“”„‟`

// Leading articles per ISO 639-3 language code.
var articles = map[string][]string{
	"eng": {"A", "The", "An"},
	"fra": {"Le", "La", "Les", "L'", "Un", "Une", "Des", "De la", "De", "D'"},
	"deu": {"Der", "Die", "Das", "Den", "Dem", "Des", "Ein", "Eine", "Einen", "Einem", "Einer", "Eines"},
	"spa": {"El", "La", "Lo", "Los", "Las", "Un", "Una", "Unos", "Unas"},
	"ita": {"Lo", "Il", "L'", "La", "Gli", "I", "Le", "Uno", "Un", "Una", "Un'"},
	"por": {"A", "O", "Os", "As", "Um", "Uma", "Uns", "Umas"},
	"nld": {"De", "Het", "Een", "'n", "'s", "Ene", "Ener", "Enes", "Den", "Der", "Des", "'t"},
}

func init() {
	// longest first so "De la" wins over "De"
	for _, list := range articles {
		sort.SliceStable(list, func(i, j int) bool { return len(list[i]) > len(list[j]) })
	}
}

// TitleSort moves a leading article to the end of the title, choosing the
// article list from lang. Unknown or empty languages use English.
func TitleSort(title, lang string) string {
	title = trimIgnoredStart(Clean(title))

	for _, article := range articlesFor(lang) {
		if rest, ok := cutArticle(title, article); ok {
			return trimIgnoredStart(rest) + ", " + title[:len(article)]
		}
	}
	return title
}

// BaseLanguage returns the ISO 639-3 code of a BCP 47 tag, or "" if the
// tag cannot be parsed.
func BaseLanguage(lang string) string {
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.ISO3()
}

func articlesFor(lang string) []string {
	if list, ok := articles[BaseLanguage(lang)]; ok {
		return list
	}
	return articles["eng"]
}

// cutArticle reports whether title starts with article followed by more
// words, and returns the remainder.
func cutArticle(title, article string) (string, bool) {
	if len(title) <= len(article) || !strings.EqualFold(title[:len(article)], article) {
		return "", false
	}
	rest := title[len(article):]
	// elided articles attach directly to the next word
	if !strings.HasSuffix(article, "'") && rest[0] != ' ' {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

func trimIgnoredStart(s string) string {
	for _, r := range ignoredStarts {
		if strings.HasPrefix(s, string(r)) {
			return s[len(string(r)):]
		}
	}
	return s
}
