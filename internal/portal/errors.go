package portal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
)

// FieldErrors maps input field names to human-readable problems. Handlers
// render it as the 400 payload's "fields" object.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, f[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsFieldErrors unwraps err into FieldErrors when possible.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
