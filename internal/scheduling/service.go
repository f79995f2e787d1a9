package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carebook/appointment-engine/internal/config"
	"github.com/carebook/appointment-engine/internal/metrics"
	redisclient "github.com/carebook/appointment-engine/internal/redis"
)

var (
	ErrSlotUnavailable   = errors.New("requested slot is not available")
	ErrInvalidWindow     = errors.New("requested window is malformed or not on a slot boundary")
	ErrDoctorNotBookable = errors.New("doctor is not approved and active")
)

type Service struct {
	ledger    Ledger
	directory Directory
	locker    redisclient.Locker
	cfg       config.Config
	logger    *zap.Logger

	// now is swapped out by tests to pin the clock.
	now func() time.Time
}

func NewService(ledger Ledger, directory Directory, locker redisclient.Locker, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{
		ledger:    ledger,
		directory: directory,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// GetAvailableSlots resolves the doctor's bookable slots for one calendar
// day. Booked and past slots are included with IsAvailable=false.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := s.directory.GetDoctorBookableStatus(ctx, doctorID); err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	rules, err := s.directory.GetWeeklyAvailability(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load weekly availability: %w", err)
	}

	existing, err := s.ledger.ListForDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load appointments for day: %w", err)
	}

	start := time.Now()
	slots := ResolveSlots(rules, date, existing, s.cfg.SlotGranularity, s.now())
	metrics.SlotResolutionDuration.Observe(time.Since(start).Seconds())

	return slots, nil
}

type BookingRequest struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	Date           time.Time
	Start          TimeOfDay
	End            TimeOfDay
	ReasonForVisit *string
}

// BookAppointment reserves a slot for a patient. Preconditions run in
// order: the doctor must be approved and active, the window must lie on a
// resolver slot boundary, and the slot must still be free at commit time.
// The final check happens inside the per (doctor, date) lock so two
// concurrent bookers for the same slot serialize and the loser fails with
// ErrSlotUnavailable instead of overwriting.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	profile, err := s.directory.GetDoctorBookableStatus(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			metrics.BookingsTotal.WithLabelValues("doctor_not_bookable").Inc()
			return nil, ErrDoctorNotBookable
		}
		metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !profile.Bookable() {
		metrics.BookingsTotal.WithLabelValues("doctor_not_bookable").Inc()
		return nil, ErrDoctorNotBookable
	}

	rules, err := s.directory.GetWeeklyAvailability(ctx, req.DoctorID)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load weekly availability: %w", err)
	}

	// Boundary check against the template alone; occupancy is decided
	// later, inside the lock.
	if req.Start >= req.End || !onSlotBoundary(rules, req.Date, req.Start, req.End, s.cfg.SlotGranularity, s.now()) {
		metrics.BookingsTotal.WithLabelValues("invalid_window").Inc()
		return nil, ErrInvalidWindow
	}

	var created *Appointment

	err = s.locker.WithScheduleLock(ctx, req.DoctorID, req.Date, func(lockCtx context.Context) error {
		// Re-resolve inside the critical section; a read taken earlier in
		// the request may be stale.
		existing, err := s.ledger.ListForDoctorDate(lockCtx, req.DoctorID, req.Date)
		if err != nil {
			return fmt.Errorf("load appointments for day: %w", err)
		}

		slots := ResolveSlots(rules, req.Date, existing, s.cfg.SlotGranularity, s.now())
		slot, ok := findSlot(slots, req.Start, req.End)
		if !ok {
			return ErrInvalidWindow
		}
		if !slot.IsAvailable {
			return ErrSlotUnavailable
		}

		appt := &Appointment{
			ID:              uuid.New(),
			DoctorID:        req.DoctorID,
			PatientID:       req.PatientID,
			Date:            req.Date,
			Start:           req.Start,
			End:             req.End,
			Status:          StatusPending,
			ReasonForVisit:  req.ReasonForVisit,
			ConsultationFee: profile.ConsultationFee,
		}

		created, err = s.ledger.CreateAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			// Lost the lock race; the caller re-fetches slots and retries.
			metrics.LockContention.Inc()
			metrics.BookingsTotal.WithLabelValues("slot_unavailable").Inc()
			return nil, ErrSlotUnavailable
		case errors.Is(err, ErrSlotUnavailable):
			metrics.BookingsTotal.WithLabelValues("slot_unavailable").Inc()
			return nil, err
		case errors.Is(err, ErrInvalidWindow):
			metrics.BookingsTotal.WithLabelValues("invalid_window").Inc()
			return nil, err
		default:
			metrics.BookingsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	metrics.BookingsTotal.WithLabelValues("created").Inc()
	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_id", req.DoctorID.String()),
		zap.String("date", FormatDate(req.Date)),
		zap.String("start", req.Start.String()),
	)

	return created, nil
}

func onSlotBoundary(rules []WeeklyAvailabilityRule, date time.Time, start, end TimeOfDay, granularity time.Duration, now time.Time) bool {
	candidates := ResolveSlots(rules, date, nil, granularity, now)
	_, ok := findSlot(candidates, start, end)
	return ok
}

func findSlot(slots []Slot, start, end TimeOfDay) (Slot, bool) {
	for _, s := range slots {
		if s.Start == start && s.End == end {
			return s, true
		}
	}
	return Slot{}, false
}

type TransitionRequest struct {
	AppointmentID      uuid.UUID
	ActorID            uuid.UUID
	Target             AppointmentStatus
	Notes              *string
	CancellationReason *string
}

// TransitionAppointmentStatus validates and applies one state-machine
// edge. The transition is first checked against the machine, then against
// the actor's role, and finally committed as a compare-and-swap on the
// ledger under the same (doctor, date) lock bookings use. A CAS miss
// means another actor moved the appointment first and surfaces as
// ErrInvalidTransition.
func (s *Service) TransitionAppointmentStatus(ctx context.Context, req TransitionRequest) (*Appointment, error) {
	appt, err := s.ledger.GetAppointmentByID(ctx, req.AppointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			metrics.TransitionFailures.WithLabelValues("not_found").Inc()
		} else {
			metrics.TransitionFailures.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(appt.Status, req.Target) {
		metrics.TransitionFailures.WithLabelValues("invalid_transition").Inc()
		return nil, fmt.Errorf("%s -> %s: %w", appt.Status, req.Target, ErrInvalidTransition)
	}

	role, err := s.directory.GetActorRole(ctx, req.ActorID)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			metrics.TransitionFailures.WithLabelValues("unauthorized").Inc()
			return nil, ErrUnauthorized
		}
		metrics.TransitionFailures.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load actor role: %w", err)
	}

	var doctor *DoctorProfile
	if role == RoleDoctor {
		doctor, err = s.directory.GetDoctorBookableStatus(ctx, appt.DoctorID)
		if err != nil {
			metrics.TransitionFailures.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("load doctor: %w", err)
		}
	}

	if err := authorizeTransition(appt, doctor, req.ActorID, role, req.Target); err != nil {
		metrics.TransitionFailures.WithLabelValues("unauthorized").Inc()
		return nil, err
	}

	if req.Target == StatusCancelled && (req.CancellationReason == nil || *req.CancellationReason == "") {
		metrics.TransitionFailures.WithLabelValues("invalid_transition").Inc()
		return nil, ErrReasonRequired
	}

	patch := StatusPatch{Notes: req.Notes}
	now := s.now()
	switch req.Target {
	case StatusApproved:
		patch.ApprovedAt = &now
		actor := req.ActorID
		patch.ApprovedBy = &actor
	case StatusCancelled:
		patch.CancelledAt = &now
		patch.CancellationReason = req.CancellationReason
	}

	var updated *Appointment

	err = s.locker.WithScheduleLock(ctx, appt.DoctorID, appt.Date, func(lockCtx context.Context) error {
		updated, err = s.ledger.UpdateAppointmentStatus(lockCtx, appt.ID, appt.Status, req.Target, patch)
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row moved out from under us between read and CAS.
			return fmt.Errorf("%s -> %s: %w", appt.Status, req.Target, ErrInvalidTransition)
		}
		return err
	})

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			metrics.LockContention.Inc()
			metrics.TransitionFailures.WithLabelValues("invalid_transition").Inc()
			return nil, fmt.Errorf("schedule busy: %w", ErrInvalidTransition)
		case errors.Is(err, ErrInvalidTransition):
			metrics.TransitionFailures.WithLabelValues("invalid_transition").Inc()
			return nil, err
		default:
			metrics.TransitionFailures.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	metrics.TransitionsTotal.WithLabelValues(string(req.Target)).Inc()
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(req.Target)),
		zap.String("actor_id", req.ActorID.String()),
	)

	return updated, nil
}

// GetAppointment retrieves one appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.ledger.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.ledger.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListAppointmentsByDoctor retrieves appointments for a specific doctor
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.ledger.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
