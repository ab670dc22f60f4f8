package domain

import (
	"testing"
	"time"
)

func kinds(s string) []EventKind {
	// compact notation: 'c' confirmed, 'm' missed, newest first
	out := make([]EventKind, 0, len(s))
	for _, r := range s {
		if r == 'c' {
			out = append(out, EventConfirmed)
		} else {
			out = append(out, EventMissed)
		}
	}
	return out
}

func TestLevel_Bands(t *testing.T) {
	cases := []struct {
		recent string
		want   int
	}{
		{"", 0},
		{"m", 0},
		{"c", 1},
		{"mmmmmm", 0},
		{"cmmmmm", 1},
		{"ccmmmm", 2},
		{"cccmmm", 3},
		{"ccccmm", 4},
		{"cccccm", 5},
		{"cccccc", 5},
	}
	for _, tc := range cases {
		if got := Level(kinds(tc.recent)); got != tc.want {
			t.Errorf("Level(%q) = %d, want %d", tc.recent, got, tc.want)
		}
	}
}

func TestLevel_ShortHistoryNoPadding(t *testing.T) {
	// Three events, two confirmed → level 2; no synthetic placeholders.
	if got := Level(kinds("ccm")); got != 2 {
		t.Fatalf("want 2, got %d", got)
	}
	// Four straight confirmations for a newish user → level 4.
	if got := Level(kinds("cccc")); got != 4 {
		t.Fatalf("want 4, got %d", got)
	}
}

func TestLevel_SixOutcomesSequence(t *testing.T) {
	// Oldest→newest: missed, missed, confirmed x4. Newest-first input:
	if got := Level(kinds("ccccmm")); got != 4 {
		t.Fatalf("want 4, got %d", got)
	}
}

func TestLevel_IgnoresEventsBeyondWindow(t *testing.T) {
	// Only the newest six count; older confirmations must not leak in.
	withTail := kinds("mmmmmm" + "cccccc")
	if got := Level(withTail); got != 0 {
		t.Fatalf("want 0, got %d", got)
	}
}

func TestLevel_NeverDecreasesOnConfirmation(t *testing.T) {
	// Prepending a confirmed outcome to any window cannot lower the level.
	histories := []string{"", "m", "c", "mmmmm", "ccmmm", "ccccc", "cccccc", "mmmmmm"}
	for _, h := range histories {
		before := Level(kinds(h))
		after := Level(kinds("c" + h))
		if after < before {
			t.Errorf("history %q: level dropped %d -> %d after confirmation", h, before, after)
		}
	}
}

func TestLevelDescription_Clamps(t *testing.T) {
	if LevelDescription(-3) != LevelDescription(0) {
		t.Fatal("negative level should clamp to 0")
	}
	if LevelDescription(42) != LevelDescription(MaxLevel) {
		t.Fatal("oversized level should clamp to MaxLevel")
	}
}

func TestDailyStats(t *testing.T) {
	s := DailyStats{Confirmed: 3, Missed: 1}
	if s.Total() != 4 {
		t.Fatalf("total: want 4, got %d", s.Total())
	}
	if got := s.SuccessRate(); got != 0.75 {
		t.Fatalf("rate: want 0.75, got %v", got)
	}
	if (DailyStats{}).SuccessRate() != 0 {
		t.Fatal("empty day must have zero rate")
	}
}

func TestDayBounds(t *testing.T) {
	// 01:30 on June 3 in Singapore is still June 2 in UTC terms.
	now := mustLocalUTC(t, "Asia/Singapore", 2025, time.June, 3, 1, 30)
	from, to := DayBounds(now, "Asia/Singapore")

	wantFrom := mustLocalUTC(t, "Asia/Singapore", 2025, time.June, 3, 0, 0)
	wantTo := mustLocalUTC(t, "Asia/Singapore", 2025, time.June, 4, 0, 0)
	if !from.Equal(wantFrom) || !to.Equal(wantTo) {
		t.Fatalf("want [%v, %v), got [%v, %v)", wantFrom, wantTo, from, to)
	}
	if !now.After(from) || !now.Before(to) {
		t.Fatal("now must fall inside its own day bounds")
	}
}

func TestDayBounds_BadTZFallsBackToUTC(t *testing.T) {
	now := time.Date(2025, time.June, 3, 12, 0, 0, 0, time.UTC)
	from, to := DayBounds(now, "Not/AZone")
	if !from.Equal(time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from: %v", from)
	}
	if !to.Equal(time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to: %v", to)
	}
}
