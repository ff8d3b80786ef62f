package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// bytesPerMB is the binary megabyte used for MAX_FILE_SIZE_MB
const bytesPerMB = 1 << 20

// DefaultAllowedExtensions is the allow-list used when none is configured
var DefaultAllowedExtensions = []string{"pdf", "docx", "csv", "jpg", "jpeg", "png"}

// Validator refuses items with a disallowed extension or an oversized payload
type Validator struct {
	allowed  map[string]struct{}
	maxBytes int64
}

// New creates a Validator. Extensions are compared case-insensitively and may carry a leading dot.
func New(allowed []string, maxFileSizeMB float64) *Validator {
	set := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			set[ext] = struct{}{}
		}
	}

	return &Validator{
		allowed:  set,
		maxBytes: int64(maxFileSizeMB * bytesPerMB),
	}
}

// Validate returns nil or a *types.ValidationError
func (v *Validator) Validate(item types.SubmittedItem) error {
	ext := item.Ext()
	if _, ok := v.allowed[ext]; !ok {
		return &types.ValidationError{
			Reason:  types.ReasonUnsupportedExtension,
			Message: fmt.Sprintf("extension %q is not one of %s", ext, strings.Join(v.Allowed(), ", ")),
		}
	}

	if size := int64(len(item.Content)); size > v.maxBytes {
		return &types.ValidationError{
			Reason:  types.ReasonFileTooLarge,
			Message: fmt.Sprintf("file is %d bytes, limit is %d", size, v.maxBytes),
		}
	}

	return nil
}

// Allowed returns the sorted allow-list
func (v *Validator) Allowed() []string {
	out := make([]string, 0, len(v.allowed))
	for ext := range v.allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// MaxBytes returns the size ceiling in bytes
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}
