package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/outbox"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id::text, shop_id::text, COALESCE(staff_id::text, ''), service_id::text,
	client_name, client_email, client_phone,
	start_time, end_time, duration_minutes, status, status_reason,
	confirmation_sent_at, reminder_sent_at, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.ShopID,
		&appt.StaffID,
		&appt.ServiceID,
		&appt.Client.Name,
		&appt.Client.Email,
		&appt.Client.Phone,
		&appt.StartTime,
		&appt.EndTime,
		&appt.DurationMinutes,
		&status,
		&appt.StatusReason,
		&appt.ConfirmationSentAt,
		&appt.ReminderSentAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// InsertAppointmentIfFree creates appt only when no scheduled appointment of the same
// staff member overlaps it. The appointments_no_overlap exclusion constraint makes the
// check and the insert one atomic step, so concurrent callers cannot both win.
// The booked event is written to the outbox in the same transaction.
func (r *Repository) InsertAppointmentIfFree(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, shop_id, staff_id, service_id, client_name, client_email, client_phone,
			 start_time, end_time, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'scheduled')
		RETURNING `+appointmentColumns,
		appt.ID, appt.ShopID, appt.StaffID, appt.ServiceID,
		appt.Client.Name, appt.Client.Email, appt.Client.Phone,
		appt.StartTime.UTC(), appt.EndTime.UTC(), appt.DurationMinutes,
	))
	if err != nil {
		return model.Appointment{}, classify(err)
	}

	evt, err := outbox.NewEvent("appointment", created.ID, outbox.EventAppointmentBooked, map[string]any{
		"appointment_id":   created.ID,
		"shop_id":          created.ShopID,
		"staff_id":         created.StaffID,
		"service_id":       created.ServiceID,
		"start_time":       created.StartTime,
		"end_time":         created.EndTime,
		"duration_minutes": created.DurationMinutes,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, classify(err)
	}
	return created, nil
}

func (r *Repository) GetAppointment(ctx context.Context, shopID, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND shop_id = $2
	`, appointmentID, shopID))
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return appt, nil
}

func (r *Repository) FindScheduledAppointments(ctx context.Context, staffID string, within interval.Interval) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE staff_id = $1
			AND status = 'scheduled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, staffID, within.Start, within.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *Repository) ListAppointments(ctx context.Context, shopID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE shop_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// UpdateStatus moves a scheduled appointment to next. Reminder timestamps are untouched.
func (r *Repository) UpdateStatus(ctx context.Context, shopID, appointmentID string, next model.Status, reason string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			status_reason = $4,
			updated_at = now()
		WHERE id = $1 AND shop_id = $2 AND status = 'scheduled'
		RETURNING `+appointmentColumns,
		appointmentID, shopID, string(next), reason,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND shop_id = $2)`, appointmentID, shopID).Scan(&exists); err != nil {
			return model.Appointment{}, err
		}
		if exists {
			return model.Appointment{}, ErrStatusFinal
		}
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, classify(err)
	}

	evt, err := outbox.NewEvent("appointment", updated.ID, outbox.EventAppointmentStatusChanged, map[string]any{
		"appointment_id": updated.ID,
		"shop_id":        updated.ShopID,
		"status":         string(updated.Status),
		"reason":         reason,
		"changed_at":     time.Now(),
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}
