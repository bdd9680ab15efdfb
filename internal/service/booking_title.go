package service

import (
	"fmt"
	"strings"
)

const titleSeparator = " - "

// bookingTitle renders "<marker> - <discipline> - <professor>", dropping the professor part when empty.
func bookingTitle(marker, discipline, professor string) string {
	if professor == "" {
		return marker + titleSeparator + discipline
	}
	return marker + titleSeparator + discipline + titleSeparator + professor
}

func bookingDescription(discipline, professor string) string {
	if professor == "" {
		return fmt.Sprintf("Aula de %s", discipline)
	}
	return fmt.Sprintf("Aula de %s com %s", discipline, professor)
}

// parseBookingTitle is the only place that reads discipline and professor back out of a title.
// Events written by this service also carry them as private extended properties, which take precedence.
func parseBookingTitle(marker, title string) (discipline, professor string, ok bool) {
	rest, found := strings.CutPrefix(title, marker+titleSeparator)
	if !found {
		return "", "", false
	}
	discipline, professor, _ = strings.Cut(rest, titleSeparator)
	return strings.TrimSpace(discipline), strings.TrimSpace(professor), discipline != ""
}

func sameName(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsName(haystack, name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && strings.Contains(strings.ToLower(haystack), strings.ToLower(name))
}
