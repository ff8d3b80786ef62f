// Package labels maps the free-form labels emitted by classifier stages onto
// a canonical taxonomy. Aliases share a set with their canonical label, which
// is always the set root.
package labels

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Canonical document labels
const (
	Invoice         = "invoice"
	BankStatement   = "bank_statement"
	FinancialReport = "financial_report"
	DriversLicence  = "drivers_licence"
	IDDocument      = "id_doc"
	Contract        = "contract"
	Email           = "email"
	Form            = "form"
)

// DefaultAliases is the built-in taxonomy, canonical label to aliases
var DefaultAliases = map[string][]string{
	Invoice:         {"bill", "receipt", "inv"},
	BankStatement:   {"bank", "statement", "account_statement"},
	FinancialReport: {"annual_report", "financial_statement", "balance_sheet", "report"},
	DriversLicence:  {"drivers_license", "driver_licence", "driver_license", "driving_licence", "driving_license", "licence", "license"},
	IDDocument:      {"id", "id_card", "identity_card", "passport", "identity_document"},
	Contract:        {"agreement", "nda", "lease"},
	Email:           {"e_mail", "mail", "eml"},
	Form:            {"application", "application_form", "questionnaire"},
}

// Taxonomy resolves labels to their canonical form. Safe for concurrent use.
type Taxonomy struct {
	mu  sync.RWMutex
	set *dsu
}

// New returns an empty taxonomy
func New() *Taxonomy {
	return &Taxonomy{set: newDSU()}
}

// Default returns a taxonomy seeded with DefaultAliases
func Default() *Taxonomy {
	t := New()
	for canonical, aliases := range DefaultAliases {
		t.AddAlias(canonical, aliases...)
	}
	return t
}

// Normalize lower-cases label and folds spaces and dashes to underscores
func Normalize(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\'' {
			return '_'
		}
		return r
	}, label)
	for strings.Contains(label, "__") {
		label = strings.ReplaceAll(label, "__", "_")
	}
	return strings.Trim(label, "_")
}

// AddAlias registers aliases under canonical
func (t *Taxonomy) AddAlias(canonical string, aliases ...string) {
	canonical = Normalize(canonical)
	if canonical == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.set.findOrCreate(canonical)
	for _, alias := range aliases {
		alias = Normalize(alias)
		if alias == "" {
			continue
		}
		t.set.attach(parent, t.set.findOrCreate(alias))
	}
}

// Canonical returns the canonical label for label. Labels outside the
// taxonomy resolve to their normalized form and are not added to it, so
// free-form stage output never grows what gets persisted. Empty input
// returns "".
func (t *Taxonomy) Canonical(label string) string {
	label = Normalize(label)
	if label == "" {
		return ""
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if root, ok := t.set.rootLabel(label); ok {
		return root
	}
	return label
}

// Known reports whether label resolves to an existing entry
func (t *Taxonomy) Known(label string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.set.labels[Normalize(label)]
	return ok
}

// CanonicalLabels returns every canonical label, sorted
func (t *Taxonomy) CanonicalLabels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0)
	for i := range t.set.root {
		if t.set.find(i) == i {
			out = append(out, t.set.labelIndex[i])
		}
	}
	sort.Strings(out)
	return out
}

// Size returns the number of labels, canonical and alias
func (t *Taxonomy) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.set.labels)
}

// CountSets returns the number of canonical labels
func (t *Taxonomy) CountSets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set.countSets()
}

type snapshot struct {
	Root   []int          `json:"root"`
	Rank   []int          `json:"rank"`
	Labels map[string]int `json:"labels"`
}

// MarshalJSON implements json.Marshaler
func (t *Taxonomy) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(snapshot{Root: t.set.root, Rank: t.set.rank, Labels: t.set.labels})
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Taxonomy) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s.Rank) != len(s.Root) {
		return errInvalidSnapshot
	}

	set := newDSU()
	set.root = s.Root
	set.rank = s.Rank
	for label, idx := range s.Labels {
		if idx < 0 || idx >= len(s.Root) || s.Root[idx] < 0 || s.Root[idx] >= len(s.Root) {
			return errInvalidSnapshot
		}
		set.labels[label] = idx
		set.labelIndex[idx] = label
	}
	if len(set.labelIndex) != len(s.Root) {
		return errInvalidSnapshot
	}

	t.mu.Lock()
	t.set = set
	t.mu.Unlock()
	return nil
}
