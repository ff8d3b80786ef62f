package stages

import (
	"strings"
	"unicode"

	"github.com/FrenchMajesty/doc-classifier/pkg/labels"
)

type rule struct {
	label   string
	phrases [][]string
	// prefixes match a token made of the prefix plus optional digits (INV001)
	prefixes []string
}

func phrases(ps ...string) [][]string {
	out := make([][]string, len(ps))
	for i, p := range ps {
		out[i] = strings.Fields(p)
	}
	return out
}

var documentRules = []rule{
	{label: labels.Invoice, phrases: phrases("invoice", "invoices", "receipt", "bill"), prefixes: []string{"inv"}},
	{label: labels.BankStatement, phrases: phrases("bank statement", "account statement", "bank", "statement")},
	{label: labels.FinancialReport, phrases: phrases("financial report", "annual report", "quarterly report",
		"financial statement", "financial statements", "balance sheet", "income statement", "financials")},
	{label: labels.DriversLicence, phrases: phrases("drivers licence", "drivers license", "driver licence",
		"driver license", "driving licence", "driving license", "driver s license", "driver s licence")},
	{label: labels.IDDocument, phrases: phrases("id card", "identity card", "national id", "identity document", "passport", "id")},
	{label: labels.Contract, phrases: phrases("contract", "agreement", "nda", "lease", "terms and conditions")},
	{label: labels.Email, phrases: phrases("email", "e mail")},
	{label: labels.Form, phrases: phrases("application form", "form", "application", "questionnaire")},
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasPhraseAt(tokens []string, i int, phrase []string) bool {
	if i+len(phrase) > len(tokens) {
		return false
	}
	for j, p := range phrase {
		if tokens[i+j] != p {
			return false
		}
	}
	return true
}

func hasNumberedPrefix(token, prefix string) bool {
	if !strings.HasPrefix(token, prefix) {
		return false
	}
	for _, r := range token[len(prefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type keywordMatch struct {
	label    string
	position int
	length   int
}

// firstMatch returns the most specific match: the longest phrase wins, then
// the earliest position, then rule order.
func firstMatch(tokens []string) (keywordMatch, bool) {
	var best keywordMatch
	found := false

	better := func(m keywordMatch) bool {
		if !found {
			return true
		}
		if m.length != best.length {
			return m.length > best.length
		}
		return m.position < best.position
	}

	for _, r := range documentRules {
		for i, tok := range tokens {
			for _, p := range r.phrases {
				if hasPhraseAt(tokens, i, p) {
					if m := (keywordMatch{r.label, i, len(p)}); better(m) {
						best, found = m, true
					}
				}
			}
			for _, prefix := range r.prefixes {
				if hasNumberedPrefix(tok, prefix) {
					if m := (keywordMatch{r.label, i, 1}); better(m) {
						best, found = m, true
					}
				}
			}
		}
	}
	return best, found
}

// dominantLabel scores every rule over the whole text, weighting longer
// phrases higher, and returns the top label. Ties go to rule order.
func dominantLabel(tokens []string) (string, bool) {
	bestLabel, bestScore := "", 0
	for _, r := range documentRules {
		score := 0
		for i, tok := range tokens {
			for _, p := range r.phrases {
				if hasPhraseAt(tokens, i, p) {
					score += len(p)
				}
			}
			for _, prefix := range r.prefixes {
				if hasNumberedPrefix(tok, prefix) {
					score++
				}
			}
		}
		if score > bestScore {
			bestLabel, bestScore = r.label, score
		}
	}
	return bestLabel, bestScore > 0
}
