package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebook/appointment-engine/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PatientID      string  `json:"patient_id" validate:"required,uuid"`
	DoctorID       string  `json:"doctor_id" validate:"required,uuid"`
	Date           string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string  `json:"start_time" validate:"required"`
	EndTime        string  `json:"end_time" validate:"required"`
	ReasonForVisit *string `json:"reason_for_visit,omitempty"`
}

type UpdateStatusRequest struct {
	Status             string  `json:"status" validate:"required,oneof=approved rejected cancelled completed no_show"`
	Notes              *string `json:"notes,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
}

type SlotResponse struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	Date               string     `json:"date"`
	StartTime          string     `json:"start_time"`
	EndTime            string     `json:"end_time"`
	Status             string     `json:"status"`
	ReasonForVisit     *string    `json:"reason_for_visit,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	ConsultationFee    float64    `json:"consultation_fee"`
	CreatedAt          time.Time  `json:"created_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	ApprovedBy         *uuid.UUID `json:"approved_by,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponses(slots []scheduling.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			StartTime:   s.Start.String(),
			EndTime:     s.End.String(),
			IsAvailable: s.IsAvailable,
		})
	}
	return out
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               scheduling.FormatDate(a.Date),
		StartTime:          a.Start.String(),
		EndTime:            a.End.String(),
		Status:             string(a.Status),
		ReasonForVisit:     a.ReasonForVisit,
		Notes:              a.Notes,
		ConsultationFee:    a.ConsultationFee,
		CreatedAt:          a.CreatedAt,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		ApprovedAt:         a.ApprovedAt,
		ApprovedBy:         a.ApprovedBy,
	}
}

func toAppointmentResponses(appts []scheduling.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}
