package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Valid reports whether raw parses as a ULID. Handlers use it to reject
// malformed path ids before touching the store.
func Valid(raw string) bool {
	_, err := ulid.ParseStrict(raw)
	return err == nil
}
