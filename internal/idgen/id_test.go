package idgen

import (
	"testing"
	"time"
)

func TestGenerateMonotonic(t *testing.T) {
	ids := make([]ID, 100)
	for i := range ids {
		ids[i] = Generate()
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1].Compare(ids[i]) >= 0 {
			t.Fatalf("ids not strictly increasing at %d: %s >= %s", i, ids[i-1], ids[i])
		}
	}
}

func TestRoundTripText(t *testing.T) {
	id := Generate()
	s := id.String()
	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %s != %s", parsed, id)
	}
}

func TestTimestampExtraction(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := GenerateAt(at)
	if got := id.Time().UnixMilli(); got != at.UnixMilli() {
		t.Fatalf("Timestamp mismatch: got %d want %d", got, at.UnixMilli())
	}
}

func TestCompareOrdersByTime(t *testing.T) {
	earlier := GenerateAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := GenerateAt(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if earlier.Compare(later) >= 0 {
		t.Fatalf("expected earlier < later")
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("not-a-valid-ulid"); err == nil {
		t.Fatal("expected error for invalid id")
	}
}
