package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carebook/appointment-engine/internal/config"
)

// -- In-memory collaborators --

type memLedger struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
}

func newMemLedger() *memLedger {
	return &memLedger{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *memLedger) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memLedger) ListForDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *memLedger) CreateAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *appt
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memLedger) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, patch StatusPatch) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		// Mirrors the CAS UPDATE matching no row.
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if patch.Notes != nil {
		a.Notes = patch.Notes
	}
	if patch.CancelledAt != nil {
		a.CancelledAt = patch.CancelledAt
	}
	if patch.CancellationReason != nil {
		a.CancellationReason = patch.CancellationReason
	}
	if patch.ApprovedAt != nil {
		a.ApprovedAt = patch.ApprovedAt
	}
	if patch.ApprovedBy != nil {
		a.ApprovedBy = patch.ApprovedBy
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memLedger) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *memLedger) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID {
			result = append(result, *a)
		}
	}
	return result, nil
}

type memDirectory struct {
	rules   []WeeklyAvailabilityRule
	doctors map[uuid.UUID]*DoctorProfile
	roles   map[uuid.UUID]Role
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		doctors: make(map[uuid.UUID]*DoctorProfile),
		roles:   make(map[uuid.UUID]Role),
	}
}

func (m *memDirectory) GetWeeklyAvailability(_ context.Context, doctorID uuid.UUID) ([]WeeklyAvailabilityRule, error) {
	var result []WeeklyAvailabilityRule
	for _, r := range m.rules {
		if r.DoctorID == doctorID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *memDirectory) GetDoctorBookableStatus(_ context.Context, doctorID uuid.UUID) (*DoctorProfile, error) {
	p, ok := m.doctors[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memDirectory) GetActorRole(_ context.Context, actorID uuid.UUID) (Role, error) {
	role, ok := m.roles[actorID]
	if !ok {
		return "", ErrActorNotFound
	}
	return role, nil
}

// memLocker serializes callers per (doctor, date) with plain mutexes, the
// in-process equivalent of the Redis locker.
type memLocker struct {
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{keys: make(map[string]*sync.Mutex)}
}

func (l *memLocker) WithScheduleLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := doctorID.String() + "/" + date.Format("2006-01-02")
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// -- Fixture --

type fixture struct {
	svc          *Service
	ledger       *memLedger
	directory    *memDirectory
	doctorID     uuid.UUID
	doctorUserID uuid.UUID
	patientID    uuid.UUID
	adminID      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger:       newMemLedger(),
		directory:    newMemDirectory(),
		doctorID:     uuid.New(),
		doctorUserID: uuid.New(),
		patientID:    uuid.New(),
		adminID:      uuid.New(),
	}

	f.directory.doctors[f.doctorID] = &DoctorProfile{
		ID:              f.doctorID,
		UserID:          f.doctorUserID,
		IsApproved:      true,
		IsActive:        true,
		ConsultationFee: 150,
	}
	f.directory.roles[f.doctorUserID] = RoleDoctor
	f.directory.roles[f.patientID] = RolePatient
	f.directory.roles[f.adminID] = RoleAdmin
	f.directory.rules = []WeeklyAvailabilityRule{{
		DoctorID:  f.doctorID,
		DayOfWeek: time.Monday,
		Start:     NewTimeOfDay(9, 0),
		End:       NewTimeOfDay(12, 0),
		Enabled:   true,
	}}

	cfg := config.Config{SlotGranularity: 30 * time.Minute}
	f.svc = NewService(f.ledger, f.directory, newMemLocker(), cfg, zap.NewNop())
	f.svc.now = func() time.Time { return beforeMonday }

	return f
}

func (f *fixture) booking(start, end TimeOfDay) BookingRequest {
	return BookingRequest{
		PatientID: f.patientID,
		DoctorID:  f.doctorID,
		Date:      monday,
		Start:     start,
		End:       end,
	}
}

// -- Booking --

func TestBookAppointmentCreatesPendingWithFeeSnapshot(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(10, 0), NewTimeOfDay(10, 30)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if appt.Status != StatusPending {
		t.Errorf("status = %s, want pending", appt.Status)
	}
	if appt.ConsultationFee != 150 {
		t.Errorf("fee = %v, want the doctor's fee at creation time", appt.ConsultationFee)
	}

	// Raising the doctor's fee must not touch the snapshot.
	f.directory.doctors[f.doctorID].ConsultationFee = 400
	got, err := f.svc.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ConsultationFee != 150 {
		t.Errorf("fee after doctor fee change = %v, want 150", got.ConsultationFee)
	}
}

func TestBookAppointmentDoctorNotBookable(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"unapproved", func(f *fixture) { f.directory.doctors[f.doctorID].IsApproved = false }},
		{"inactive", func(f *fixture) { f.directory.doctors[f.doctorID].IsActive = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f)
			_, err := f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(9, 0), NewTimeOfDay(9, 30)))
			if !errors.Is(err, ErrDoctorNotBookable) {
				t.Fatalf("got %v, want ErrDoctorNotBookable", err)
			}
		})
	}

	t.Run("unknown doctor", func(t *testing.T) {
		f := newFixture(t)
		req := f.booking(NewTimeOfDay(9, 0), NewTimeOfDay(9, 30))
		req.DoctorID = uuid.New()
		_, err := f.svc.BookAppointment(context.Background(), req)
		if !errors.Is(err, ErrDoctorNotBookable) {
			t.Fatalf("got %v, want ErrDoctorNotBookable", err)
		}
	})
}

func TestBookAppointmentInvalidWindow(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name       string
		start, end TimeOfDay
	}{
		{"off slot boundary", NewTimeOfDay(9, 10), NewTimeOfDay(9, 40)},
		{"wrong length", NewTimeOfDay(9, 0), NewTimeOfDay(10, 0)},
		{"start after end", NewTimeOfDay(10, 0), NewTimeOfDay(9, 30)},
		{"zero length", NewTimeOfDay(9, 0), NewTimeOfDay(9, 0)},
		{"outside availability", NewTimeOfDay(14, 0), NewTimeOfDay(14, 30)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.BookAppointment(context.Background(), f.booking(tc.start, tc.end))
			if !errors.Is(err, ErrInvalidWindow) {
				t.Fatalf("got %v, want ErrInvalidWindow", err)
			}
		})
	}
}

func TestBookAppointmentSlotTaken(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(10, 0), NewTimeOfDay(10, 30))); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(10, 0), NewTimeOfDay(10, 30)))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
}

func TestConcurrentBookingExclusivity(t *testing.T) {
	f := newFixture(t)

	const bookers = 16
	var wg sync.WaitGroup
	errs := make([]error, bookers)

	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(11, 0), NewTimeOfDay(11, 30)))
		}(i)
	}
	wg.Wait()

	var created, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrSlotUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if created != 1 {
		t.Fatalf("expected exactly 1 successful booking, got %d", created)
	}
	if unavailable != bookers-1 {
		t.Fatalf("expected %d ErrSlotUnavailable, got %d", bookers-1, unavailable)
	}
}

func TestGetAvailableSlotsReflectsBooking(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(10, 0), NewTimeOfDay(10, 30))); err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	slots, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

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

// -- Transitions --

func (f *fixture) mustBook(t *testing.T, start, end TimeOfDay) *Appointment {
	t.Helper()
	appt, err := f.svc.BookAppointment(context.Background(), f.booking(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	return appt
}

func TestApproveSetsAuditFields(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(t, NewTimeOfDay(9, 0), NewTimeOfDay(9, 30))

	updated, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID: appt.ID,
		ActorID:       f.doctorUserID,
		Target:        StatusApproved,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Status != StatusApproved {
		t.Errorf("status = %s, want approved", updated.Status)
	}
	if updated.ApprovedAt == nil {
		t.Error("ApprovedAt not set")
	}
	if updated.ApprovedBy == nil || *updated.ApprovedBy != f.doctorUserID {
		t.Error("ApprovedBy not set to the approving actor")
	}
}

func TestCancelRequiresReasonAndSetsAuditFields(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(t, NewTimeOfDay(9, 0), NewTimeOfDay(9, 30))

	_, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID: appt.ID,
		ActorID:       f.patientID,
		Target:        StatusCancelled,
	})
	if !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("got %v, want ErrReasonRequired", err)
	}

	reason := "schedule conflict"
	updated, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID:      appt.ID,
		ActorID:            f.patientID,
		Target:             StatusCancelled,
		CancellationReason: &reason,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.CancelledAt == nil {
		t.Error("CancelledAt not set")
	}
	if updated.CancellationReason == nil || *updated.CancellationReason != reason {
		t.Error("CancellationReason not recorded")
	}
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(t, NewTimeOfDay(10, 0), NewTimeOfDay(10, 30))

	reason := "schedule conflict"
	if _, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID:      appt.ID,
		ActorID:            f.patientID,
		Target:             StatusCancelled,
		CancellationReason: &reason,
	}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	slots, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, slot := range slots {
		if !slot.IsAvailable {
			t.Errorf("slot %s still unavailable after cancellation", slot.Start)
		}
	}

	// And the freed slot is bookable again.
	if _, err := f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(10, 0), NewTimeOfDay(10, 30))); err != nil {
		t.Fatalf("rebooking freed slot failed: %v", err)
	}
}

func TestTransitionRoleEnforcement(t *testing.T) {
	f := newFixture(t)

	t.Run("patient cannot approve", func(t *testing.T) {
		appt := f.mustBook(t, NewTimeOfDay(9, 0), NewTimeOfDay(9, 30))
		_, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
			AppointmentID: appt.ID,
			ActorID:       f.patientID,
			Target:        StatusApproved,
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unknown actor is unauthorized", func(t *testing.T) {
		appt := f.mustBook(t, NewTimeOfDay(9, 30), NewTimeOfDay(10, 0))
		_, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
			AppointmentID: appt.ID,
			ActorID:       uuid.New(),
			Target:        StatusApproved,
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("admin can reject", func(t *testing.T) {
		appt := f.mustBook(t, NewTimeOfDay(10, 0), NewTimeOfDay(10, 30))
		updated, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
			AppointmentID: appt.ID,
			ActorID:       f.adminID,
			Target:        StatusRejected,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != StatusRejected {
			t.Fatalf("status = %s, want rejected", updated.Status)
		}
	})
}

func TestTransitionOutOfTerminalStateFails(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(t, NewTimeOfDay(9, 0), NewTimeOfDay(9, 30))

	if _, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID: appt.ID,
		ActorID:       f.doctorUserID,
		Target:        StatusRejected,
	}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	for _, target := range []AppointmentStatus{StatusApproved, StatusPending, StatusCancelled, StatusCompleted} {
		_, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
			AppointmentID: appt.ID,
			ActorID:       f.adminID,
			Target:        target,
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("rejected -> %s: got %v, want ErrInvalidTransition", target, err)
		}
	}
}

func TestTransitionReapplySameStatusFails(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(t, NewTimeOfDay(9, 0), NewTimeOfDay(9, 30))

	if _, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID: appt.ID,
		ActorID:       f.doctorUserID,
		Target:        StatusApproved,
	}); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	_, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID: appt.ID,
		ActorID:       f.doctorUserID,
		Target:        StatusApproved,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition on re-approve", err)
	}
}

func TestTransitionUnknownAppointment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
		AppointmentID: uuid.New(),
		ActorID:       f.adminID,
		Target:        StatusApproved,
	})
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("got %v, want ErrAppointmentNotFound", err)
	}
}

func TestCompletedAppointmentStillBlocksSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(t, NewTimeOfDay(11, 0), NewTimeOfDay(11, 30))

	for _, target := range []AppointmentStatus{StatusApproved, StatusCompleted} {
		if _, err := f.svc.TransitionAppointmentStatus(context.Background(), TransitionRequest{
			AppointmentID: appt.ID,
			ActorID:       f.doctorUserID,
			Target:        target,
		}); err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}

	_, err := f.svc.BookAppointment(context.Background(), f.booking(NewTimeOfDay(11, 0), NewTimeOfDay(11, 30)))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable for completed slot", err)
	}
}
