package preprocess

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

var (
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe      = regexp.MustCompile(`\+?\(?\d{1,4}\)?[\s.-]?\d{2,4}[\s.-]?\d{2,4}[\s.-]?\d{0,4}`)
	idNumberRe   = regexp.MustCompile(`\b\d{8,16}\b`)
	cardRe       = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	addressRe    = regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z0-9\s]{1,40}\s(Street|St|Road|Rd|Avenue|Ave|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`)
	abnRe        = regexp.MustCompile(`(?i)\bABN\s*:?\s*(\d{11})\b|\b(\d{11})\b`)
	tfnRe        = regexp.MustCompile(`(?i)\bTFN\s*:?\s*(\d{8,9})\b`)
	tfnBareRe    = regexp.MustCompile(`\b\d{8,9}\b`)
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	copyrightRe  = regexp.MustCompile(`©|all rights reserved`)
	quotedSpanRe = regexp.MustCompile(`"([^"]{120,})"`)
)

var profanityWords = []string{
	"damn", "hell", "shit", "fuck", "bastard", "asshole", "bitch",
}

var riskKeywords = map[string][]string{
	"violence":  {"kill", "attack", "weapon", "assault", "murder"},
	"hate":      {"racial slur", "hate speech", "genocide"},
	"self_harm": {"suicide", "self-harm", "self harm", "cutting myself"},
	"adult":     {"explicit sexual", "pornographic"},
}

// pii type ordering is stable per the spec: email, phone, id_number,
// credit_card, address, abn, tfn, ssn.
var piiTypeOrder = []string{"email", "phone", "id_number", "credit_card", "address", "abn", "tfn", "ssn"}

// Inspection holds every content-derived signal the preprocessor extracts
// from a single piece of text.
type Inspection struct {
	ContainsPII         bool
	PIITypes            []string
	Profanities         []string
	RiskFlags           []string
	PossibleCopyright   bool
}

// Inspect runs every regex-based detector over text deterministically.
func Inspect(text string) Inspection {
	found := make(map[string]bool)

	if emailRe.MatchString(text) {
		found["email"] = true
	}
	if hasValidPhone(text) {
		found["phone"] = true
	}
	if idNumberRe.MatchString(text) {
		found["id_number"] = true
	}
	if hasLuhnCard(text) {
		found["credit_card"] = true
	}
	if addressRe.MatchString(text) {
		found["address"] = true
	}
	if abnRe.MatchString(text) {
		found["abn"] = true
	}
	if hasTFN(text) {
		found["tfn"] = true
	}
	if ssnRe.MatchString(text) {
		found["ssn"] = true
	}

	var types []string
	for _, t := range piiTypeOrder {
		if found[t] {
			types = append(types, t)
		}
	}

	return Inspection{
		ContainsPII:       len(types) > 0,
		PIITypes:          types,
		Profanities:       detectProfanities(text),
		RiskFlags:         detectRiskFlags(text),
		PossibleCopyright: detectCopyright(text),
	}
}

func hasValidPhone(text string) bool {
	for _, m := range phoneRe.FindAllString(text, -1) {
		digits := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 8 {
			return true
		}
	}
	return false
}

func hasLuhnCard(text string) bool {
	for _, m := range cardRe.FindAllString(text, -1) {
		digits := stripNonDigits(m)
		if len(digits) >= 13 && len(digits) <= 19 && luhnValid(digits) {
			return true
		}
	}
	return false
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasTFN(text string) bool {
	if tfnRe.MatchString(text) {
		return true
	}
	return tfnBareRe.MatchString(text)
}

func detectProfanities(text string) []string {
	folded := fold.String(text)
	var out []string
	seen := make(map[string]bool)
	for _, w := range profanityWords {
		if wholeWordMatch(folded, fold.String(w)) && !seen[w] {
			out = append(out, w)
			seen[w] = true
		}
	}
	return out
}

func wholeWordMatch(haystack, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(haystack)
}

func detectRiskFlags(text string) []string {
	folded := fold.String(text)
	var flags []string
	for _, flag := range []string{"violence", "hate", "self_harm", "adult"} {
		for _, kw := range riskKeywords[flag] {
			if strings.Contains(folded, fold.String(kw)) {
				flags = append(flags, flag)
				break
			}
		}
	}
	sort.Strings(flags)
	return flags
}

func detectCopyright(text string) bool {
	if copyrightRe.MatchString(strings.ToLower(text)) {
		return true
	}
	return quotedSpanRe.MatchString(text)
}
