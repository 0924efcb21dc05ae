package moderation

import "testing"

func TestMediaBlocked_DefaultAllowed(t *testing.T) {
	s, ctx := newTestStore(t)

	blocked, err := s.MediaBlocked(ctx, "photo")
	if err != nil || blocked {
		t.Fatalf("MediaBlocked(photo) = %v, %v, want false before any block", blocked, err)
	}
}

func TestMediaBlocked_EmptyTypeNeverBlocked(t *testing.T) {
	s, ctx := newTestStore(t)

	if err := s.BlockMediaType(ctx, "photo"); err != nil {
		t.Fatalf("BlockMediaType: %v", err)
	}

	blocked, err := s.MediaBlocked(ctx, "")
	if err != nil || blocked {
		t.Fatalf("MediaBlocked(\"\") = %v, %v, want false regardless of what's blocked", blocked, err)
	}
}

func TestBlockAndUnblockMediaType(t *testing.T) {
	s, ctx := newTestStore(t)

	if err := s.BlockMediaType(ctx, "voice"); err != nil {
		t.Fatalf("BlockMediaType: %v", err)
	}
	blocked, err := s.MediaBlocked(ctx, "voice")
	if err != nil || !blocked {
		t.Fatalf("MediaBlocked(voice) = %v, %v, want true after BlockMediaType", blocked, err)
	}

	if err := s.UnblockMediaType(ctx, "voice"); err != nil {
		t.Fatalf("UnblockMediaType: %v", err)
	}
	blocked, err = s.MediaBlocked(ctx, "voice")
	if err != nil || blocked {
		t.Fatalf("MediaBlocked(voice) = %v, %v, want false after UnblockMediaType", blocked, err)
	}
}
