package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrActorNotFound       = errors.New("actor not found")
)

// StatusPatch carries the audit fields a status transition is allowed to
// touch. Everything else on an appointment is immutable after creation.
type StatusPatch struct {
	Notes              *string
	CancelledAt        *time.Time
	CancellationReason *string
	ApprovedAt         *time.Time
	ApprovedBy         *uuid.UUID
}

// Ledger is the authoritative appointment store and the only place
// appointment state is mutated.
type Ledger interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListForDoctorDate returns every appointment for the doctor on the
	// calendar day, regardless of status. The resolver filters blocking
	// statuses itself.
	ListForDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)

	// UpdateAppointmentStatus moves from to to as a compare-and-swap: the
	// write only lands if the row still holds the expected status, and
	// ErrAppointmentNotFound signals a lost race.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, patch StatusPatch) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)
}

// Directory is the boundary to the profile-management collaborator. The
// engine reads it, never writes it.
type Directory interface {
	GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID) ([]WeeklyAvailabilityRule, error)
	GetDoctorBookableStatus(ctx context.Context, doctorID uuid.UUID) (*DoctorProfile, error)
	GetActorRole(ctx context.Context, actorID uuid.UUID) (Role, error)
}
