package scheduling

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("actor is not allowed to perform this transition")
	ErrReasonRequired    = errors.New("cancellation requires a non-empty reason")
)

// transitions is the full appointment state machine. Rejected, cancelled,
// completed and no_show are terminal.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// IsTerminal reports whether no further transition may leave the status.
func IsTerminal(s AppointmentStatus) bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from → to is an edge of the state machine.
// Re-applying the current status is not a valid edge: the caller must
// detect the no-op and skip, so audit timestamps are never duplicated.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// authorizeTransition enforces the role table: approve/reject/complete/
// no-show belong to the owning doctor or an admin, cancel additionally to
// the owning patient. actorID identifies the caller; ownership is checked
// against the appointment's patient and the doctor profile's user.
func authorizeTransition(appt *Appointment, doctor *DoctorProfile, actorID uuid.UUID, role Role, to AppointmentStatus) error {
	if role == RoleAdmin {
		return nil
	}

	owningDoctor := role == RoleDoctor && doctor != nil && doctor.UserID == actorID
	owningPatient := role == RolePatient && appt.PatientID == actorID

	switch to {
	case StatusApproved, StatusRejected, StatusCompleted, StatusNoShow:
		if owningDoctor {
			return nil
		}
	case StatusCancelled:
		if owningDoctor || owningPatient {
			return nil
		}
	}
	return ErrUnauthorized
}
