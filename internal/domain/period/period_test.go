package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestCalendarMonth(t *testing.T) {
	p := CalendarMonth(date(2026, time.March, 17, 13, 45))

	if !p.Start.Equal(date(2026, time.March, 1, 0, 0)) {
		t.Errorf("unexpected start %v", p.Start)
	}
	if !p.End.Equal(date(2026, time.April, 1, 0, 0)) {
		t.Errorf("unexpected end %v", p.End)
	}
}

func TestCalendarMonth_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 2026-03-31 22:00 local is 2026-04-01 03:00 UTC
	p := CalendarMonth(time.Date(2026, time.March, 31, 22, 0, 0, 0, loc))

	if p.Start.Month() != time.April {
		t.Errorf("expected April window, got %v", p.Start)
	}
}

func TestCalendarMonth_DecemberRollsYear(t *testing.T) {
	p := CalendarMonth(date(2026, time.December, 31, 23, 59))
	if !p.End.Equal(date(2027, time.January, 1, 0, 0)) {
		t.Errorf("unexpected end %v", p.End)
	}
}

func TestContains_HalfOpen(t *testing.T) {
	p := CalendarMonth(date(2026, time.May, 10, 0, 0))

	if !p.Contains(p.Start) {
		t.Error("start must be inside the window")
	}
	if p.Contains(p.End) {
		t.Error("end must be outside the window")
	}
	if !p.Contains(p.End.Add(-time.Nanosecond)) {
		t.Error("last instant must be inside the window")
	}
}

func TestAnchored(t *testing.T) {
	anchor := date(2026, time.January, 15, 9, 30)

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"on anchor", anchor, anchor, date(2026, time.February, 15, 9, 30)},
		{"mid period", date(2026, time.March, 20, 0, 0), date(2026, time.March, 15, 9, 30), date(2026, time.April, 15, 9, 30)},
		{"before day in month", date(2026, time.March, 10, 0, 0), date(2026, time.February, 15, 9, 30), date(2026, time.March, 15, 9, 30)},
		{"before time on day", date(2026, time.March, 15, 9, 29), date(2026, time.February, 15, 9, 30), date(2026, time.March, 15, 9, 30)},
		{"next year", date(2027, time.January, 2, 0, 0), date(2026, time.December, 15, 9, 30), date(2027, time.January, 15, 9, 30)},
		{"before anchor", date(2025, time.December, 20, 0, 0), date(2025, time.December, 15, 9, 30), anchor},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Anchored(tc.now, anchor)
			if !p.Start.Equal(tc.wantStart) || !p.End.Equal(tc.wantEnd) {
				t.Errorf("Anchored(%v) = [%v, %v), want [%v, %v)", tc.now, p.Start, p.End, tc.wantStart, tc.wantEnd)
			}
			if !p.Contains(tc.now) {
				t.Errorf("window does not contain now")
			}
		})
	}
}

func TestAnchored_ClampsShortMonths(t *testing.T) {
	anchor := date(2026, time.January, 31, 0, 0)

	feb := Anchored(date(2026, time.March, 1, 0, 0), anchor)
	if !feb.Start.Equal(date(2026, time.February, 28, 0, 0)) {
		t.Errorf("expected Feb 28 start, got %v", feb.Start)
	}
	if !feb.End.Equal(date(2026, time.March, 31, 0, 0)) {
		t.Errorf("expected Mar 31 end, got %v", feb.End)
	}

	leap := Anchored(date(2028, time.February, 29, 12, 0), anchor)
	if !leap.Start.Equal(date(2028, time.February, 29, 0, 0)) {
		t.Errorf("expected Feb 29 start in leap year, got %v", leap.Start)
	}
}

func TestResolver_Deterministic(t *testing.T) {
	r := NewResolver(PolicyAnchor)
	now := date(2026, time.June, 3, 4, 5)
	anchor := date(2025, time.November, 9, 0, 0)

	a := r.Current(now, &anchor)
	b := r.Current(now, &anchor)
	if !a.Equal(b) {
		t.Errorf("same inputs gave %v and %v", a, b)
	}
}

func TestResolver_Policies(t *testing.T) {
	now := date(2026, time.June, 3, 4, 5)
	anchor := date(2025, time.November, 9, 0, 0)

	cal := NewResolver(PolicyCalendar).Current(now, &anchor)
	if !cal.Equal(CalendarMonth(now)) {
		t.Errorf("calendar policy must ignore anchor, got %v", cal)
	}

	anch := NewResolver(PolicyAnchor).Current(now, &anchor)
	if !anch.Start.Equal(date(2026, time.May, 9, 0, 0)) {
		t.Errorf("anchor policy start = %v", anch.Start)
	}

	noAnchor := NewResolver(PolicyAnchor).Current(now, nil)
	if !noAnchor.Equal(CalendarMonth(now)) {
		t.Errorf("missing anchor must fall back to calendar month, got %v", noAnchor)
	}
}

func TestRolled(t *testing.T) {
	r := NewResolver(PolicyCalendar)
	lastInstant := date(2026, time.April, 30, 23, 59).Add(59*time.Second + 999*time.Millisecond)
	firstInstant := date(2026, time.May, 1, 0, 0)

	prev := r.Current(lastInstant, nil)
	next := r.Current(firstInstant, nil)

	if !Rolled(prev, next) {
		t.Error("expected rollover between the last and first instants")
	}
	if Rolled(next, prev) {
		t.Error("an older window is not a rollover")
	}
	if Rolled(prev, prev) {
		t.Error("same window is not a rollover")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyAnchor {
		t.Errorf("empty policy: got %q, %v", p, err)
	}
	if p, err := ParsePolicy("calendar"); err != nil || p != PolicyCalendar {
		t.Errorf("calendar policy: got %q, %v", p, err)
	}
	if _, err := ParsePolicy("weekly"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestKey(t *testing.T) {
	p := CalendarMonth(date(2026, time.July, 4, 0, 0))
	if got := p.Key(); got != "20260701T000000Z" {
		t.Errorf("unexpected key %q", got)
	}
}
