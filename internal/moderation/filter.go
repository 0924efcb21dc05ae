package moderation

import "strings"

// FilterResult is the outcome of a content check: either clean (the zero
// value) or blocking, carrying the reason category and the specific term
// that matched for logging/audit purposes.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string
}

// Filter screens free-text content (chat messages, interest tags) against a
// blocklist of single words and multi-word phrases. It normalizes common
// leetspeak substitutions before matching so "k1ll yourself" and "kill
// yourself" are treated the same.
type Filter struct {
	words   map[string]struct{}
	phrases [][]string // each phrase is its lower-cased, whitespace-tokenized words
}

// defaultBlockedTerms is a representative, non-exhaustive seed list spanning
// the categories the router must gate on: slurs and harassment, self-harm
// incitement, sexual exploitation of minors, and the more common spam
// lures. Operators are expected to extend this via NewFilterWithTerms with
// their own moderation-team-maintained list; this default exists so a
// freshly deployed bot isn't wide open.
var defaultBlockedTerms = []string{
	"kill yourself", "go die", "child porn", "cp links",
	"send nudes", "sextortion",
	"free bitcoin", "crypto giveaway", "click here to claim",
}

// NewFilter creates a Filter using the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultBlockedTerms)
}

// NewFilterWithTerms creates a Filter from an explicit term list. Empty and
// whitespace-only entries are discarded. Terms are matched case-insensitively
// and after leetspeak normalization.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, raw := range terms {
		t := strings.ToLower(strings.TrimSpace(raw))
		if t == "" {
			continue
		}
		parts := strings.Fields(t)
		if len(parts) == 1 {
			f.words[parts[0]] = struct{}{}
		} else {
			f.phrases = append(f.phrases, parts)
		}
	}
	return f
}

// Check screens text for blocked words and phrases. Whole-word matching is
// used for single terms (so "badwording" does not match "badword"); phrases
// match on consecutive token sequences.
func (f *Filter) Check(text string) FilterResult {
	if text == "" {
		return FilterResult{}
	}

	plain := tokenizePlain(text)
	leet := tokenizeLeet(text)

	for i, tok := range plain {
		norm := normalizeLeet(leet[i])
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
		if norm != tok {
			if _, ok := f.words[norm]; ok {
				return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
			}
		}
	}

	normPlain := make([]string, len(plain))
	for i, tok := range plain {
		normPlain[i] = normalizeLeet(tok)
	}
	for _, phrase := range f.phrases {
		if containsSequence(plain, phrase) || containsSequence(normPlain, phrase) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: strings.Join(phrase, " ")}
		}
	}

	return FilterResult{}
}

// CheckInterests filters a list of interest tags, returning only the ones
// that pass Check clean. Used to scrub preference-adjacent free text before
// it is ever stored or displayed.
func (f *Filter) CheckInterests(interests []string) []string {
	if len(interests) == 0 {
		return []string{}
	}
	clean := make([]string, 0, len(interests))
	for _, tag := range interests {
		if !f.Check(tag).Blocked {
			clean = append(clean, tag)
		}
	}
	return clean
}

func containsSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, w := range needle {
			if haystack[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// leetMap maps common leetspeak substitutions back to their letter.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// normalizeLeet rewrites common numeric/symbol substitutions back to
// letters, lower-cased, so blocklist matching survives basic obfuscation.
func normalizeLeet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if repl, ok := leetMap[r]; ok {
			b.WriteRune(repl)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// tokenizePlain splits text on whitespace and strips leading/trailing
// punctuation from each token, lower-casing the result. Internal
// leetspeak characters are left untouched (tokenizeLeet handles those).
func tokenizePlain(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.ToLower(strings.TrimFunc(field, isPunct))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// tokenizeLeet splits text on whitespace without stripping punctuation, so
// leetspeak tokens like "$h!t" or "b@dw0rd" survive intact for
// normalizeLeet to process. Its output is index-aligned with
// tokenizePlain's only when no token was entirely punctuation.
func tokenizeLeet(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimFunc(field, func(r rune) bool {
			return isPunct(r) && !isLeetSymbol(r)
		})
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '"', '\'', '(', ')', '[', ']', '-':
		return true
	default:
		return false
	}
}

func isLeetSymbol(r rune) bool {
	_, ok := leetMap[r]
	return ok
}
