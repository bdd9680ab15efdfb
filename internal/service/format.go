package service

import (
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Academic records keep names upper-cased without accents.
var disciplineSpellings = map[string]string{
	"EDUCACAO FISICA": "Educação Física",
	"QUIMICA":         "Química",
	"FISICA":          "Física",
	"MATEMATICA":      "Matemática",
	"PORTUGUES":       "Português",
	"HISTORIA":        "História",
	"GEOGRAFIA":       "Geografia",
	"BIOLOGIA":        "Biologia",
	"REDACAO":         "Redação",
	"INGLES":          "Inglês",
	"ARTES":           "Artes",
}

// disciplinePatterns is ordered longest first so compound names win over their parts.
var disciplinePatterns = func() []disciplinePattern {
	keys := make([]string, 0, len(disciplineSpellings))
	for k := range disciplineSpellings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	out := make([]disciplinePattern, 0, len(keys))
	for _, k := range keys {
		out = append(out, disciplinePattern{re: regexp.MustCompile(`(?i)\b` + k + `\b`), spelling: disciplineSpellings[k]})
	}
	return out
}()

type disciplinePattern struct {
	re       *regexp.Regexp
	spelling string
}

var unicodeEscape = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// decodeAPIString undoes the escaping the academic service applies to free text.
func decodeAPIString(raw string) string {
	decoded := unicodeEscape.ReplaceAllStringFunc(raw, func(m string) string {
		var r rune
		for _, c := range m[2:] {
			r <<= 4
			switch {
			case c >= '0' && c <= '9':
				r |= c - '0'
			case c >= 'a' && c <= 'f':
				r |= c - 'a' + 10
			case c >= 'A' && c <= 'F':
				r |= c - 'A' + 10
			}
		}
		return string(r)
	})
	decoded = html.UnescapeString(decoded)
	if unescaped, err := url.PathUnescape(decoded); err == nil {
		decoded = unescaped
	}
	return strings.Join(strings.Fields(decoded), " ")
}

func titleCase(s string) string {
	return cases.Title(language.BrazilianPortuguese).String(strings.ToLower(s))
}

// FormatProfessorName title-cases a professor name.
func FormatProfessorName(name string) string {
	if name == "" {
		return ""
	}
	return titleCase(decodeAPIString(name))
}

// FormatDisciplineName restores the accented spelling of well-known disciplines and title-cases the rest.
func FormatDisciplineName(name string) string {
	if name == "" {
		return ""
	}
	decoded := decodeAPIString(name)
	for _, p := range disciplinePatterns {
		if p.re.MatchString(decoded) {
			rest := p.re.Split(decoded, -1)
			for i := range rest {
				rest[i] = titleCase(rest[i])
			}
			return strings.Join(rest, p.spelling)
		}
	}
	return titleCase(decoded)
}
