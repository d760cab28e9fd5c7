package write

import (
	"strings"
	"testing"

	"github.com/dtambussi/fanout/internal/apperr"
	"github.com/dtambussi/fanout/internal/idgen"
)

func TestNormalizeContentTrimsWhitespace(t *testing.T) {
	got, err := normalizeContent("  hello world  ")
	if err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if got != "hello world" {
		t.Errorf("normalizeContent = %q, want %q", got, "hello world")
	}
}

func TestNormalizeContentRejectsEmptyAfterTrim(t *testing.T) {
	_, err := normalizeContent("   \t\n  ")
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodePostContentEmpty {
		t.Fatalf("normalizeContent error = %v, want CodePostContentEmpty", err)
	}
}

func TestNormalizeContentRejectsOverLongContent(t *testing.T) {
	content := strings.Repeat("a", MaxContentLength+1)
	_, err := normalizeContent(content)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodePostContentTooLong {
		t.Fatalf("normalizeContent error = %v, want CodePostContentTooLong", err)
	}
}

func TestNormalizeContentAcceptsExactlyMaxLength(t *testing.T) {
	content := strings.Repeat("a", MaxContentLength)
	got, err := normalizeContent(content)
	if err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if got != content {
		t.Error("normalizeContent must accept content exactly at the limit")
	}
}

func TestNormalizeContentCountsUnicodeCodePointsNotBytes(t *testing.T) {
	// Each 'é' is two bytes in UTF-8 but one code point, so this string is
	// exactly at the limit by code points despite exceeding it in bytes.
	content := strings.Repeat("é", MaxContentLength)
	if _, err := normalizeContent(content); err != nil {
		t.Fatalf("normalizeContent must count runes, not bytes: %v", err)
	}
}

func TestFollowRejectsSelfFollow(t *testing.T) {
	s := &Services{}
	userID := idgen.Generate()

	err := s.Follow(nil, userID, userID) //nolint:staticcheck // self-follow is rejected before ctx is used
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodeSelfFollow {
		t.Fatalf("Follow(self) error = %v, want CodeSelfFollow", err)
	}
}

func TestUnfollowRejectsSelfUnfollow(t *testing.T) {
	s := &Services{}
	userID := idgen.Generate()

	err := s.Unfollow(nil, userID, userID) //nolint:staticcheck // self-unfollow is rejected before ctx is used
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodeSelfFollow {
		t.Fatalf("Unfollow(self) error = %v, want CodeSelfFollow", err)
	}
}
