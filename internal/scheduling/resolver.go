package scheduling

import (
	"sort"
	"time"
)

// ResolveSlots expands a doctor's weekly template into the candidate slots
// for one calendar day and marks each one available or not against the
// existing appointments. It is a pure function of its inputs: no slot is
// silently dropped, ordering is by start time, and calling it twice with
// the same inputs yields the same result.
//
// A slot is unavailable when it overlaps a pending, approved or completed
// appointment, or when it starts at or before now on the current day.
// Past dates resolve with every slot unavailable.
func ResolveSlots(rules []WeeklyAvailabilityRule, date time.Time, existing []Appointment, granularity time.Duration, now time.Time) []Slot {
	if granularity <= 0 {
		return nil
	}
	step := TimeOfDay(granularity / time.Minute)
	if step <= 0 {
		return nil
	}

	seen := make(map[TimeOfDay]bool)
	slots := make([]Slot, 0)

	for _, rule := range rules {
		if !rule.Enabled || rule.DayOfWeek != date.Weekday() {
			continue
		}
		// Malformed rules are the profile editor's bug; fail closed here.
		if rule.Start >= rule.End {
			continue
		}
		for start := rule.Start; start+step <= rule.End; start += step {
			if seen[start] {
				continue
			}
			seen[start] = true
			slots = append(slots, Slot{Start: start, End: start + step, IsAvailable: true})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })

	for i := range slots {
		if !slotBookable(slots[i], date, now) {
			slots[i].IsAvailable = false
			continue
		}
		for j := range existing {
			if existing[j].Status.Blocks() && existing[j].Overlaps(slots[i].Start, slots[i].End) {
				slots[i].IsAvailable = false
				break
			}
		}
	}

	return slots
}

func slotBookable(s Slot, date, now time.Time) bool {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if day.Before(nowDay) {
		return false
	}
	if day.Equal(nowDay) {
		return s.Start > NewTimeOfDay(now.Hour(), now.Minute())
	}
	return true
}
