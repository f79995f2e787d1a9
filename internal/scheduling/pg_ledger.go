package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

const appointmentColumns = `
	id, doctor_id, patient_id, date, start_minute, end_minute, status,
	reason_for_visit, notes, consultation_fee, created_at, updated_at,
	cancelled_at, cancellation_reason, approved_at, approved_by
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end int

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&start,
		&end,
		&a.Status,
		&a.ReasonForVisit,
		&a.Notes,
		&a.ConsultationFee,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CancelledAt,
		&a.CancellationReason,
		&a.ApprovedAt,
		&a.ApprovedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = TimeOfDay(start)
	a.End = TimeOfDay(end)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgLedger) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgLedger) ListForDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_minute
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgLedger) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, date, start_minute, end_minute, status,
			reason_for_visit, consultation_fee, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.DoctorID, appt.PatientID, appt.Date, int(appt.Start), int(appt.End),
		appt.Status, appt.ReasonForVisit, appt.ConsultationFee)

	return scanAppointment(row)
}

// UpdateAppointmentStatus is a compare-and-swap on status: the row is
// only updated when its current status still matches from. No rows
// updated surfaces as ErrAppointmentNotFound.
func (r *PgLedger) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, patch StatusPatch) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = COALESCE($4, notes),
		    cancelled_at = COALESCE($5, cancelled_at),
		    cancellation_reason = COALESCE($6, cancellation_reason),
		    approved_at = COALESCE($7, approved_at),
		    approved_by = COALESCE($8, approved_by),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, patch.Notes, patch.CancelledAt, patch.CancellationReason,
		patch.ApprovedAt, patch.ApprovedBy)

	return scanAppointment(row)
}

func (r *PgLedger) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, start_minute DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgLedger) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY date DESC, start_minute DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

var _ Ledger = (*PgLedger)(nil)

// Schema is the DDL the engine expects; cmd/seed applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id          uuid PRIMARY KEY,
	name        text NOT NULL,
	email       text,
	role        text NOT NULL,
	is_active   boolean NOT NULL DEFAULT true,
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS doctors (
	id               uuid PRIMARY KEY,
	user_id          uuid NOT NULL REFERENCES users(id),
	specialty        text,
	license_number   text,
	consultation_fee numeric(10,2) NOT NULL DEFAULT 0,
	is_approved      boolean NOT NULL DEFAULT false,
	is_active        boolean NOT NULL DEFAULT true,
	created_at       timestamptz NOT NULL DEFAULT now(),
	updated_at       timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_rules (
	id           uuid PRIMARY KEY,
	doctor_id    uuid NOT NULL REFERENCES doctors(id),
	day_of_week  smallint NOT NULL,
	start_minute integer NOT NULL,
	end_minute   integer NOT NULL,
	enabled      boolean NOT NULL DEFAULT true
);

CREATE INDEX IF NOT EXISTS idx_rules_doctor_day
	ON availability_rules (doctor_id, day_of_week, enabled);

CREATE TABLE IF NOT EXISTS appointments (
	id                  uuid PRIMARY KEY,
	doctor_id           uuid NOT NULL REFERENCES doctors(id),
	patient_id          uuid NOT NULL REFERENCES users(id),
	date                date NOT NULL,
	start_minute        integer NOT NULL,
	end_minute          integer NOT NULL,
	status              text NOT NULL,
	reason_for_visit    text,
	notes               text,
	consultation_fee    numeric(10,2) NOT NULL,
	created_at          timestamptz NOT NULL DEFAULT now(),
	updated_at          timestamptz NOT NULL DEFAULT now(),
	cancelled_at        timestamptz,
	cancellation_reason text,
	approved_at         timestamptz,
	approved_by         uuid
);

CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date
	ON appointments (doctor_id, date);

CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_active_slot
	ON appointments (doctor_id, date, start_minute)
	WHERE status IN ('pending', 'approved', 'completed');
`

// ApplySchema creates the engine's tables if they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
