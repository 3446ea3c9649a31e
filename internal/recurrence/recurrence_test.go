package recurrence

import (
	"testing"
	"time"

	"remindd/internal/model"
)

// Monday 2026-01-05 is a convenient anchor: Jan 5-11 covers Mon..Sun.
func day(weekday int, hour, min, sec int) time.Time {
	return time.Date(2026, 1, 4+weekday, hour, min, sec, 0, time.UTC)
}

func TestDailyBeforeTimeOfDay(t *testing.T) {
	r := model.Reminder{Type: model.TypeDaily, TimeOfDay: "08:00"}
	ref := time.Date(2026, 1, 5, 7, 59, 31, 0, time.UTC)

	got := ComputeNext(r, ref)
	want := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestDailyAfterTimeOfDay(t *testing.T) {
	r := model.Reminder{Type: model.TypeDaily, TimeOfDay: "08:00"}
	ref := time.Date(2026, 1, 5, 8, 0, 1, 0, time.UTC)

	got := ComputeNext(r, ref)
	want := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestDailyExactlyAtTimeOfDay(t *testing.T) {
	// An occurrence equal to the reference time has already passed.
	r := model.Reminder{Type: model.TypeDaily, TimeOfDay: "08:00"}
	ref := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	got := ComputeNext(r, ref)
	want := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestWeeklyNextConfiguredDay(t *testing.T) {
	// Mon/Wed/Fri at 08:00, reference Tuesday 09:00 -> Wednesday 08:00.
	r := model.Reminder{Type: model.TypeWeekly, TimeOfDay: "08:00", Weekdays: []int{1, 3, 5}}
	ref := day(2, 9, 0, 0) // Tuesday

	got := ComputeNext(r, ref)
	want := day(3, 8, 0, 0) // Wednesday
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestWeeklySameDayBeforeTime(t *testing.T) {
	r := model.Reminder{Type: model.TypeWeekly, TimeOfDay: "08:00", Weekdays: []int{1, 3, 5}}
	ref := day(1, 7, 0, 0) // Monday 07:00

	got := ComputeNext(r, ref)
	want := day(1, 8, 0, 0)
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestWeeklySameDayAfterTimeWraps(t *testing.T) {
	// Only Monday configured; Monday 09:00 rolls a full week.
	r := model.Reminder{Type: model.TypeWeekly, TimeOfDay: "08:00", Weekdays: []int{1}}
	ref := day(1, 9, 0, 0)

	got := ComputeNext(r, ref)
	want := day(8, 8, 0, 0) // next Monday
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestWeeklyAllDaysBehavesLikeDaily(t *testing.T) {
	weekly := model.Reminder{Type: model.TypeWeekly, TimeOfDay: "08:00", Weekdays: []int{0, 1, 2, 3, 4, 5, 6}}
	daily := model.Reminder{Type: model.TypeDaily, TimeOfDay: "08:00"}

	refs := []time.Time{
		day(1, 7, 0, 0),
		day(1, 9, 0, 0),
		day(6, 23, 59, 59),
	}
	for _, ref := range refs {
		w := ComputeNext(weekly, ref)
		d := ComputeNext(daily, ref)
		if !w.Equal(d) {
			t.Errorf("ref %v: weekly all-days = %v, daily = %v", ref, w, d)
		}
	}
}

func TestRecurringAdvancesGrid(t *testing.T) {
	r := model.Reminder{
		Type:            model.TypeRecurring,
		IntervalMinutes: 60,
		StartTime:       "09:00",
		EndTime:         "17:00",
	}
	ref := time.Date(2026, 1, 5, 10, 15, 0, 0, time.UTC)

	got := ComputeNext(r, ref)
	want := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestRecurringSnapsToBoundary(t *testing.T) {
	r := model.Reminder{
		Type:            model.TypeRecurring,
		IntervalMinutes: 60,
		StartTime:       "09:00",
		EndTime:         "17:00",
	}

	// 20 seconds past a grid point snaps back; 31 seconds past advances.
	snap := time.Date(2026, 1, 5, 11, 0, 20, 0, time.UTC)
	got := ComputeNext(r, snap)
	want := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("snap: ComputeNext = %v, want %v", got, want)
	}

	advance := time.Date(2026, 1, 5, 11, 0, 31, 0, time.UTC)
	got = ComputeNext(r, advance)
	want = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("advance: ComputeNext = %v, want %v", got, want)
	}
}

func TestRecurringRollsToNextDay(t *testing.T) {
	r := model.Reminder{
		Type:            model.TypeRecurring,
		IntervalMinutes: 60,
		StartTime:       "09:00",
		EndTime:         "17:00",
	}
	ref := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)

	got := ComputeNext(r, ref)
	want := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestRecurringBeforeWindow(t *testing.T) {
	r := model.Reminder{
		Type:            model.TypeRecurring,
		IntervalMinutes: 30,
		StartTime:       "09:00",
		EndTime:         "17:00",
	}
	ref := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)

	got := ComputeNext(r, ref)
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ComputeNext = %v, want %v", got, want)
	}
}

func TestFailSoftFallbacks(t *testing.T) {
	ref := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	want := ref.Add(60 * time.Minute)

	tests := []struct {
		name string
		r    model.Reminder
	}{
		{"unknown type", model.Reminder{Type: "hourly"}},
		{"recurring missing interval", model.Reminder{Type: model.TypeRecurring, StartTime: "09:00", EndTime: "17:00"}},
		{"recurring missing start", model.Reminder{Type: model.TypeRecurring, IntervalMinutes: 30, EndTime: "17:00"}},
		{"recurring missing end", model.Reminder{Type: model.TypeRecurring, IntervalMinutes: 30, StartTime: "09:00"}},
		{"recurring inverted window", model.Reminder{Type: model.TypeRecurring, IntervalMinutes: 30, StartTime: "17:00", EndTime: "09:00"}},
		{"daily malformed time", model.Reminder{Type: model.TypeDaily, TimeOfDay: "25:99"}},
		{"weekly no days", model.Reminder{Type: model.TypeWeekly, TimeOfDay: "08:00"}},
	}

	for _, tt := range tests {
		got := ComputeNext(tt.r, ref)
		if !got.Equal(want) {
			t.Errorf("%s: ComputeNext = %v, want %v", tt.name, got, want)
		}
	}
}

func TestComputeNextAlwaysFuture(t *testing.T) {
	// Outside the recurring snap case, the result is strictly after ref.
	ref := time.Date(2026, 1, 5, 12, 34, 56, 0, time.UTC)
	reminders := []model.Reminder{
		{Type: model.TypeDaily, TimeOfDay: "12:34"},
		{Type: model.TypeDaily, TimeOfDay: "00:00"},
		{Type: model.TypeWeekly, TimeOfDay: "12:00", Weekdays: []int{1}},
		{Type: model.TypeRecurring, IntervalMinutes: 15, StartTime: "08:00", EndTime: "20:00"},
	}
	for i, r := range reminders {
		got := ComputeNext(r, ref)
		if !got.After(ref) {
			t.Errorf("reminder %d: ComputeNext = %v, not after ref %v", i, got, ref)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	tests := []struct {
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"08:00", 8, 0, false},
		{"23:59", 23, 59, false},
		{" 9:30 ", 9, 30, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		h, m, err := ParseHHMM(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHHMM(%q) should error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHHMM(%q) error: %v", tt.input, err)
			continue
		}
		if h != tt.hour || m != tt.minute {
			t.Errorf("ParseHHMM(%q) = %d:%d, want %d:%d", tt.input, h, m, tt.hour, tt.minute)
		}
	}
}
