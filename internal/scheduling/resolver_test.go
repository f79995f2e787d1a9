package scheduling

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	testDoctorID = uuid.MustParse("7b0e3a68-91f5-4f6a-a4a3-0d8b6d6c1a01")

	// 2026-09-07 is a Monday.
	monday = time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC)

	// A Tuesday the week before, mid-morning.
	beforeMonday = time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
)

func mondayMorningRule() WeeklyAvailabilityRule {
	return WeeklyAvailabilityRule{
		DoctorID:  testDoctorID,
		DayOfWeek: time.Monday,
		Start:     NewTimeOfDay(9, 0),
		End:       NewTimeOfDay(12, 0),
		Enabled:   true,
	}
}

func TestResolveSlotsMondayMorning(t *testing.T) {
	rules := []WeeklyAvailabilityRule{mondayMorningRule()}

	slots := ResolveSlots(rules, monday, nil, 30*time.Minute, beforeMonday)

	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}

	wantStarts := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	for i, slot := range slots {
		if slot.Start.String() != wantStarts[i] {
			t.Errorf("slot %d: start = %s, want %s", i, slot.Start, wantStarts[i])
		}
		if slot.End != slot.Start+30 {
			t.Errorf("slot %d: end = %s, want %s", i, slot.End, slot.Start+30)
		}
		if !slot.IsAvailable {
			t.Errorf("slot %d (%s): expected available", i, slot.Start)
		}
	}
}

func TestResolveSlotsMarksBookedSlot(t *testing.T) {
	rules := []WeeklyAvailabilityRule{mondayMorningRule()}
	existing := []Appointment{{
		DoctorID: testDoctorID,
		Date:     monday,
		Start:    NewTimeOfDay(10, 0),
		End:      NewTimeOfDay(10, 30),
		Status:   StatusPending,
	}}

	slots := ResolveSlots(rules, monday, existing, 30*time.Minute, beforeMonday)

	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	for _, slot := range slots {
		wantAvailable := slot.Start.String() != "10:00"
		if slot.IsAvailable != wantAvailable {
			t.Errorf("slot %s: available = %v, want %v", slot.Start, slot.IsAvailable, wantAvailable)
		}
	}
}

func TestResolveSlotsIgnoresNonBlockingStatuses(t *testing.T) {
	rules := []WeeklyAvailabilityRule{mondayMorningRule()}

	for _, status := range []AppointmentStatus{StatusRejected, StatusCancelled, StatusNoShow} {
		existing := []Appointment{{
			Start:  NewTimeOfDay(10, 0),
			End:    NewTimeOfDay(10, 30),
			Status: status,
		}}
		slots := ResolveSlots(rules, monday, existing, 30*time.Minute, beforeMonday)
		for _, slot := range slots {
			if !slot.IsAvailable {
				t.Errorf("status %s: slot %s should be available", status, slot.Start)
			}
		}
	}
}

func TestResolveSlotsDeduplicatesOverlappingRules(t *testing.T) {
	second := mondayMorningRule()
	second.Start = NewTimeOfDay(10, 0)
	second.End = NewTimeOfDay(13, 0)
	rules := []WeeklyAvailabilityRule{mondayMorningRule(), second}

	slots := ResolveSlots(rules, monday, nil, 30*time.Minute, beforeMonday)

	// Union of 09:00-12:00 and 10:00-13:00 partitioned by 30 min.
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start <= slots[i-1].Start {
			t.Fatalf("slots not strictly ordered at index %d", i)
		}
	}
}

func TestResolveSlotsSkipsMalformedAndDisabledRules(t *testing.T) {
	malformed := mondayMorningRule()
	malformed.Start = NewTimeOfDay(12, 0)
	malformed.End = NewTimeOfDay(9, 0)

	disabled := mondayMorningRule()
	disabled.Enabled = false

	slots := ResolveSlots([]WeeklyAvailabilityRule{malformed, disabled}, monday, nil, 30*time.Minute, beforeMonday)
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestResolveSlotsNoRulesForDay(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)
	slots := ResolveSlots([]WeeklyAvailabilityRule{mondayMorningRule()}, tuesday, nil, 30*time.Minute, beforeMonday)
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a day without rules, got %d", len(slots))
	}
}

func TestResolveSlotsSameDayPastCutoff(t *testing.T) {
	rules := []WeeklyAvailabilityRule{mondayMorningRule()}
	now := time.Date(2026, time.September, 7, 10, 5, 0, 0, time.UTC)

	slots := ResolveSlots(rules, monday, nil, 30*time.Minute, now)

	for _, slot := range slots {
		// Slots starting at or before 10:05 are gone for the day.
		wantAvailable := slot.Start > NewTimeOfDay(10, 5)
		if slot.IsAvailable != wantAvailable {
			t.Errorf("slot %s at now=10:05: available = %v, want %v", slot.Start, slot.IsAvailable, wantAvailable)
		}
	}
}

func TestResolveSlotsPastDateAllUnavailable(t *testing.T) {
	rules := []WeeklyAvailabilityRule{mondayMorningRule()}
	now := time.Date(2026, time.September, 10, 8, 0, 0, 0, time.UTC)

	slots := ResolveSlots(rules, monday, nil, 30*time.Minute, now)

	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	for _, slot := range slots {
		if slot.IsAvailable {
			t.Errorf("slot %s on a past date should be unavailable", slot.Start)
		}
	}
}

func TestResolveSlotsIsPure(t *testing.T) {
	rules := []WeeklyAvailabilityRule{mondayMorningRule()}
	existing := []Appointment{{
		Start:  NewTimeOfDay(9, 30),
		End:    NewTimeOfDay(10, 0),
		Status: StatusApproved,
	}}

	first := ResolveSlots(rules, monday, existing, 30*time.Minute, beforeMonday)
	second := ResolveSlots(rules, monday, existing, 30*time.Minute, beforeMonday)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("two resolutions with identical inputs differ")
	}
}

func TestResolveSlotsGranularityNotDividingWindow(t *testing.T) {
	rule := mondayMorningRule()
	rule.End = NewTimeOfDay(11, 50)

	slots := ResolveSlots([]WeeklyAvailabilityRule{rule}, monday, nil, 30*time.Minute, beforeMonday)

	// 09:00-11:50 fits five whole 30 minute slots; the 11:30 slot would
	// run past the window and must not appear.
	if len(slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(slots))
	}
	if last := slots[len(slots)-1]; last.Start.String() != "11:00" {
		t.Fatalf("last slot starts at %s, want 11:00", last.Start)
	}
}
