package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/appointment-engine/internal/db"
	"github.com/carebook/appointment-engine/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := scheduling.ApplySchema(context.Background(), pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedAdmin(context.Background(), pool); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, is_active)
		VALUES ($1, $2, $3, 'admin', true)
	`, uuid.New(), gofakeit.Name(), gofakeit.Email())
	return err
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	for i := 0; i < count; i++ {
		userID := uuid.New()
		doctorID := uuid.New()

		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, name, email, role, is_active)
			VALUES ($1, $2, $3, 'doctor', true)
		`, userID, "Dr. "+gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return err
		}

		// A handful stay unapproved so DoctorNotBookable paths get seed data.
		approved := gofakeit.Number(0, 9) > 0

		_, err = pool.Exec(ctx, `
			INSERT INTO doctors (id, user_id, specialty, license_number, consultation_fee, is_approved, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, true)
		`, doctorID, userID,
			specialties[gofakeit.Number(0, len(specialties)-1)],
			gofakeit.Numerify("LIC-######"),
			float64(gofakeit.Number(40, 300)),
			approved)
		if err != nil {
			return err
		}

		if err := seedWeeklyRules(ctx, pool, doctorID); err != nil {
			return err
		}
	}

	return nil
}

// seedWeeklyRules gives a doctor a plausible weekday template: a morning
// window every weekday, an afternoon window on some of them.
func seedWeeklyRules(ctx context.Context, pool *pgxpool.Pool, doctorID uuid.UUID) error {
	for day := time.Monday; day <= time.Friday; day++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO availability_rules (id, doctor_id, day_of_week, start_minute, end_minute, enabled)
			VALUES ($1, $2, $3, $4, $5, true)
		`, uuid.New(), doctorID, int(day),
			int(scheduling.NewTimeOfDay(9, 0)), int(scheduling.NewTimeOfDay(12, 0)))
		if err != nil {
			return err
		}

		if gofakeit.Bool() {
			_, err = pool.Exec(ctx, `
				INSERT INTO availability_rules (id, doctor_id, day_of_week, start_minute, end_minute, enabled)
				VALUES ($1, $2, $3, $4, $5, true)
			`, uuid.New(), doctorID, int(day),
				int(scheduling.NewTimeOfDay(14, 0)), int(scheduling.NewTimeOfDay(17, 0)))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, name, email, role, is_active)
			VALUES ($1, $2, $3, 'patient', true)
		`, uuid.New(), gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return err
		}
	}

	return nil
}
