package facts

import (
	"regexp"
	"strconv"
	"strings"
)

// Extraction and classification patterns. Matching is case-insensitive and
// intentionally loose: a false positive overwrites a fact with what the user
// just said, which is the desired "latest statement wins" behavior.
var (
	namePattern       = regexp.MustCompile(`(?i)i am (\w+)`)
	agePattern        = regexp.MustCompile(`(?i)(\d{1,3}) ?years? old`)
	birthplacePattern = regexp.MustCompile(`(?i)(?:born in|from)\s+([\w\s]+)`)
	metaPattern       = regexp.MustCompile(`(?i)what.*name|age|birthplace|born`)
)

// RegexExtractor recognizes first-person statements of name, age and
// birthplace, such as "I am Alice", "I am 30 years old", "I was born in Oslo".
type RegexExtractor struct{}

// NewRegexExtractor creates a RegexExtractor.
func NewRegexExtractor() RegexExtractor {
	return RegexExtractor{}
}

// Extract implements Extractor.
func (RegexExtractor) Extract(message string) Update {
	var u Update

	if m := namePattern.FindStringSubmatch(message); m != nil {
		name := m[1]
		u.Name = &name
	}
	if m := agePattern.FindStringSubmatch(message); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil {
			u.Age = &age
		}
	}
	if m := birthplacePattern.FindStringSubmatch(message); m != nil {
		place := strings.TrimSpace(m[1])
		if place != "" {
			u.Birthplace = &place
		}
	}

	return u
}

// IsMetaQuestion reports whether the query asks about the user's own
// identity ("what is my name", "how old am I") rather than the documents.
// Such queries are answered directly from stored facts without invoking
// the model.
func IsMetaQuestion(query string) bool {
	return metaPattern.MatchString(query)
}
