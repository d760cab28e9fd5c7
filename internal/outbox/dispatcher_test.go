package outbox

import (
	"strings"
	"testing"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

func TestSubjectForKnownEventTypes(t *testing.T) {
	aggregateID := idgen.Generate()

	cases := []struct {
		eventType models.EventType
		wantPfx   string
	}{
		{models.EventPostCreated, "outbox.post_created."},
		{models.EventUserFollowed, "outbox.user_followed."},
		{models.EventUserUnfollowed, "outbox.user_unfollowed."},
	}

	for _, tc := range cases {
		record := &models.OutboxRecord{AggregateID: aggregateID, EventType: tc.eventType}
		subject, err := subjectFor(record)
		if err != nil {
			t.Fatalf("subjectFor(%s): unexpected error: %v", tc.eventType, err)
		}
		if !strings.HasPrefix(subject, tc.wantPfx) {
			t.Errorf("subjectFor(%s) = %q, want prefix %q", tc.eventType, subject, tc.wantPfx)
		}
	}
}

func TestSubjectForUnknownEventType(t *testing.T) {
	record := &models.OutboxRecord{AggregateID: idgen.Generate(), EventType: "NOT_A_REAL_EVENT"}
	if _, err := subjectFor(record); err == nil {
		t.Fatal("subjectFor with unknown event type: expected error, got nil")
	}
}

func TestSubjectForStableAcrossCalls(t *testing.T) {
	aggregateID := idgen.Generate()
	record := &models.OutboxRecord{AggregateID: aggregateID, EventType: models.EventPostCreated}

	first, err := subjectFor(record)
	if err != nil {
		t.Fatalf("first subjectFor: %v", err)
	}
	second, err := subjectFor(record)
	if err != nil {
		t.Fatalf("second subjectFor: %v", err)
	}
	if first != second {
		t.Errorf("subjectFor not stable for the same aggregate: %q != %q", first, second)
	}
}

func TestDefaultDispatcherConfig(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	if cfg.BatchSize <= 0 {
		t.Error("expected a positive default batch size")
	}
	if cfg.PollInterval <= 0 {
		t.Error("expected a positive default poll interval")
	}
	if cfg.CompactInterval <= cfg.PollInterval {
		t.Error("expected compaction to run on a slower cadence than polling")
	}
}
