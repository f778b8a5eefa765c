package store

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeClock lets tests control the updated_at stamp of each write.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStateCRUD(t *testing.T) {
	s := newTestStore(t)

	// Missing key returns empty string.
	v, err := s.GetState(KeyToken)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	if err := s.SetState(KeyToken, "abc"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	v, err = s.GetState(KeyToken)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if v != "abc" {
		t.Errorf("expected 'abc', got %q", v)
	}

	// Overwrite.
	if err := s.SetState(KeyToken, "def"); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}
	v, _ = s.GetState(KeyToken)
	if v != "def" {
		t.Errorf("expected 'def', got %q", v)
	}

	if err := s.DeleteState(KeyToken); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}
	v, _ = s.GetState(KeyToken)
	if v != "" {
		t.Errorf("expected empty value after delete, got %q", v)
	}

	// Deleting twice is fine.
	if err := s.DeleteState(KeyToken); err != nil {
		t.Errorf("DeleteState missing key: %v", err)
	}
}

func TestListStateKeys(t *testing.T) {
	s := newTestStore(t)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.now = clock.now

	for _, k := range []string{"answers_a", "answers_b", "answersXc", "token"} {
		if err := s.SetState(k, "{}"); err != nil {
			t.Fatalf("SetState(%s): %v", k, err)
		}
		clock.advance(time.Minute)
	}

	keys, err := s.ListStateKeys("answers_")
	if err != nil {
		t.Fatalf("ListStateKeys: %v", err)
	}
	// "_" is literal, so answersXc does not match.
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	if keys[0] != "answers_b" || keys[1] != "answers_a" {
		t.Errorf("expected newest first [answers_b answers_a], got %v", keys)
	}
}

func TestPruneKeys(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		ttl         time.Duration
		keep        int
		wantRemoved int64
		wantKeys    []string
	}{
		{"disabled", 0, 0, 0, []string{"answers_4", "answers_3", "answers_2", "answers_1"}},
		{"ttl only", 150 * time.Minute, 0, 2, []string{"answers_4", "answers_3"}},
		{"keep only", 0, 3, 1, []string{"answers_4", "answers_3", "answers_2"}},
		{"ttl and keep", 150 * time.Minute, 1, 3, []string{"answers_4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			clock := &fakeClock{t: start}
			s.now = clock.now

			// answers_1 at 0h, answers_2 at 1h, answers_3 at 2h, answers_4 at 3h.
			for _, k := range []string{"answers_1", "answers_2", "answers_3", "answers_4"} {
				if err := s.SetState(k, "{}"); err != nil {
					t.Fatalf("SetState: %v", err)
				}
				clock.advance(time.Hour)
			}
			if err := s.SetState(KeyToken, "tok"); err != nil {
				t.Fatalf("SetState token: %v", err)
			}
			// now = 4h
			removed, err := s.PruneKeys("answers_", tt.ttl, tt.keep)
			if err != nil {
				t.Fatalf("PruneKeys: %v", err)
			}
			if removed != tt.wantRemoved {
				t.Errorf("removed = %d, want %d", removed, tt.wantRemoved)
			}

			keys, _ := s.ListStateKeys("answers_")
			if len(keys) != len(tt.wantKeys) {
				t.Fatalf("keys = %v, want %v", keys, tt.wantKeys)
			}
			for i := range keys {
				if keys[i] != tt.wantKeys[i] {
					t.Errorf("keys[%d] = %q, want %q", i, keys[i], tt.wantKeys[i])
				}
			}

			// Unrelated keys survive.
			tok, _ := s.GetState(KeyToken)
			if tok != "tok" {
				t.Errorf("token pruned unexpectedly")
			}
		})
	}
}
