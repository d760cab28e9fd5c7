// Package idgen mints time-ordered 128-bit identifiers for posts and users.
//
// IDs are ULIDs: the high 48 bits are a millisecond Unix timestamp, the low
// 80 bits are a monotonic random component. Lexicographic order on the
// canonical text form therefore matches chronological order, which is what
// lets the timeline cache and the read-path merge use the ID itself as the
// sort key instead of a separately stored timestamp.
package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// ID is a time-ordered 128-bit identifier.
type ID ulid.ULID

// Zero is the zero-value ID, used as a sentinel for "no id".
var Zero ID

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Generate mints a new ID from the current wall-clock time.
func Generate() ID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy))
}

// GenerateAt mints a new ID embedding the given timestamp. Used by seed/test
// code that needs reproducible, backdated ids.
func GenerateAt(t time.Time) ID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), entropy))
}

// Parse decodes the canonical 26-character text form of an ID.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return Zero, fmt.Errorf("idgen: parse %q: %w", s, err)
	}
	return ID(u), nil
}

// MustParse is like Parse but panics on error. Intended for constants in
// tests and seed data, not for untrusted input.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical Crockford base32 text form.
func (id ID) String() string {
	return ulid.ULID(id).String()
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == Zero
}

// Timestamp returns the millisecond Unix timestamp embedded in id.
func (id ID) Timestamp() int64 {
	return int64(ulid.ULID(id).Time())
}

// Time returns the embedded timestamp as a time.Time.
func (id ID) Time() time.Time {
	return ulid.Time(ulid.ULID(id).Time())
}

// Compare returns -1, 0, or 1 as id orders before, equal to, or after other.
// Because ids are time-ordered, Compare doubles as a chronological
// comparator; the read path sorts on it directly instead of CreatedAt.
func (id ID) Compare(other ID) int {
	a, b := ulid.ULID(id), ulid.ULID(other)
	return a.Compare(b)
}

// Bytes returns the raw 16-byte encoding.
func (id ID) Bytes() []byte {
	b := ulid.ULID(id)
	return b[:]
}

// MarshalText implements encoding.TextMarshaler so IDs serialize to JSON as
// their canonical string form.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value implements database/sql/driver.Valuer, storing IDs as their text form.
func (id ID) Value() (interface{}, error) {
	return id.String(), nil
}

// Scan implements database/sql.Scanner.
func (id *ID) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case nil:
		*id = Zero
		return nil
	default:
		return fmt.Errorf("idgen: cannot scan %T into ID", src)
	}
}
