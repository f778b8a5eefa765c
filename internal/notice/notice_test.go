package notice

import (
	"testing"

	"github.com/pavelanni/aceplus/internal/model"
	"github.com/pavelanni/aceplus/internal/store"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewTracker(s)
}

func TestUpdates(t *testing.T) {
	tr := newTestTracker(t)
	v1 := model.Update{Version: "1.4.0"}
	v2 := model.Update{Version: "1.5.0"}

	steps := []struct {
		name string
		u    model.Update
		ack  bool
		want bool
	}{
		{"first sight", v1, true, true},
		{"acknowledged", v1, false, false},
		{"newer version", v2, false, true},
		{"still unacknowledged", v2, true, true},
		{"after ack", v2, false, false},
		{"no version", model.Update{}, false, false},
	}
	for _, st := range steps {
		got, err := tr.UpdateIsNew(st.u)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if got != st.want {
			t.Errorf("%s: UpdateIsNew = %v, want %v", st.name, got, st.want)
		}
		if st.ack {
			if err := tr.AckUpdate(st.u); err != nil {
				t.Fatalf("%s: AckUpdate: %v", st.name, err)
			}
		}
	}
}

func TestLeaderboard(t *testing.T) {
	tr := newTestTracker(t)
	entries := []model.LeaderboardEntry{{Rank: 1, Name: "A B"}}
	may := model.Leaderboard{Month: "May 2026", Class: "10", Entries: entries}
	mayOther := model.Leaderboard{Month: "May 2026", Class: "9", Entries: entries}
	empty := model.Leaderboard{Month: "June 2026", Zero: true}

	check := func(lb model.Leaderboard, want bool) {
		t.Helper()
		got, err := tr.LeaderboardIsNew(lb)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("LeaderboardIsNew(%s) = %v, want %v", lb.ID(), got, want)
		}
	}

	check(may, true)
	if err := tr.AckLeaderboard(may); err != nil {
		t.Fatal(err)
	}
	check(may, false)
	check(mayOther, true)
	check(empty, false)
}

func TestFirstVisit(t *testing.T) {
	tr := newTestTracker(t)
	first, err := tr.FirstVisit()
	if err != nil || !first {
		t.Fatalf("FirstVisit = %v, %v; want true", first, err)
	}
	again, err := tr.FirstVisit()
	if err != nil || again {
		t.Fatalf("second FirstVisit = %v, %v; want false", again, err)
	}
}
