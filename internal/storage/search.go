package storage

import "strings"

// Search is a parsed question search string. Bracketed tokens like "[go]" are tag
// names, everything else is a keyword matched against title and text.
type Search struct {
	Keywords []string
	Tags     []string
}

func ParseSearch(s string) Search {
	var out Search
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if len(tok) > 2 && strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			out.Tags = append(out.Tags, tok[1:len(tok)-1])
			continue
		}
		out.Keywords = append(out.Keywords, tok)
	}
	return out
}

func (s Search) Empty() bool {
	return len(s.Keywords) == 0 && len(s.Tags) == 0
}

// Match reports whether a question with the given title, text and tag names matches
// any keyword or any tag.
func (s Search) Match(title, text string, tagNames []string) bool {
	if s.Empty() {
		return true
	}
	title, text = strings.ToLower(title), strings.ToLower(text)
	for _, k := range s.Keywords {
		if strings.Contains(title, k) || strings.Contains(text, k) {
			return true
		}
	}
	for _, t := range s.Tags {
		for _, name := range tagNames {
			if strings.EqualFold(t, name) {
				return true
			}
		}
	}
	return false
}
