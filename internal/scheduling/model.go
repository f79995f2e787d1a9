package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusApproved  AppointmentStatus = "approved"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

// blockingStatuses occupy the doctor's slot; rejected/cancelled/no_show do not.
var blockingStatuses = map[AppointmentStatus]bool{
	StatusPending:   true,
	StatusApproved:  true,
	StatusCompleted: true,
}

func (s AppointmentStatus) Blocks() bool {
	return blockingStatuses[s]
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// TimeOfDay is a wall-clock time at minute resolution, stored as minutes
// since midnight. It crosses the API boundary as "HH:MM" (or "HH:MM:SS",
// seconds discarded).
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var hour, minute, second int
	n, err := fmt.Sscanf(s, "%d:%d:%d", &hour, &minute, &second)
	if err != nil && n < 2 {
		return 0, fmt.Errorf("parse time of day %q: want HH:MM or HH:MM:SS", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("parse time of day %q: out of range", s)
	}
	return NewTimeOfDay(hour, minute), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns the time of day d later. The result may run past midnight;
// callers that care clamp against endOfDay.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

// At anchors the wall-clock time onto a calendar day.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar day. Days are timezone-naive:
// the doctor's local day, normalized to midnight UTC for storage.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// WeeklyAvailabilityRule is one window of a doctor's recurring weekly
// template. Overlapping enabled rules for the same day are permitted and
// simply widen availability.
type WeeklyAvailabilityRule struct {
	DoctorID  uuid.UUID
	DayOfWeek time.Weekday
	Start     TimeOfDay
	End       TimeOfDay
	Enabled   bool
}

// Slot is a fixed-duration candidate interval within a doctor's
// availability. Booked and past slots are returned with IsAvailable=false
// rather than dropped, so every caller sees the same view.
type Slot struct {
	Start       TimeOfDay
	End         TimeOfDay
	IsAvailable bool
}

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Date               time.Time
	Start              TimeOfDay
	End                TimeOfDay
	Status             AppointmentStatus
	ReasonForVisit     *string
	Notes              *string
	ConsultationFee    float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	ApprovedAt         *time.Time
	ApprovedBy         *uuid.UUID
}

// Overlaps reports whether the appointment's half-open [Start, End)
// interval intersects [start, end).
func (a *Appointment) Overlaps(start, end TimeOfDay) bool {
	return a.Start < end && start < a.End
}

// DoctorProfile is the slice of the profile-management collaborator's
// doctor record the engine needs: bookability plus the fee snapshotted
// onto each new appointment. UserID is the doctor's actor identity, used
// for owning-doctor authorization checks.
type DoctorProfile struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	IsApproved      bool
	IsActive        bool
	ConsultationFee float64
}

func (p *DoctorProfile) Bookable() bool {
	return p.IsApproved && p.IsActive
}
