package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory reads the profile-management collaborator's tables. The
// engine never writes them.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID) ([]WeeklyAvailabilityRule, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT doctor_id, day_of_week, start_minute, end_minute, enabled
		FROM availability_rules
		WHERE doctor_id = $1
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []WeeklyAvailabilityRule
	for rows.Next() {
		var r WeeklyAvailabilityRule
		var day, start, end int
		if err := rows.Scan(&r.DoctorID, &day, &start, &end, &r.Enabled); err != nil {
			return nil, err
		}
		r.DayOfWeek = time.Weekday(day)
		r.Start = TimeOfDay(start)
		r.End = TimeOfDay(end)
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rules, nil
}

func (d *PgDirectory) GetDoctorBookableStatus(ctx context.Context, doctorID uuid.UUID) (*DoctorProfile, error) {
	var p DoctorProfile
	err := d.pool.QueryRow(ctx, `
		SELECT id, user_id, is_approved, is_active, consultation_fee
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&p.ID, &p.UserID, &p.IsApproved, &p.IsActive, &p.ConsultationFee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *PgDirectory) GetActorRole(ctx context.Context, actorID uuid.UUID) (Role, error) {
	var role Role
	err := d.pool.QueryRow(ctx, `
		SELECT role
		FROM users
		WHERE id = $1 AND is_active
	`, actorID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrActorNotFound
		}
		return "", err
	}
	return role, nil
}

var _ Directory = (*PgDirectory)(nil)
