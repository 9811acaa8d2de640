// Package storage is the scheduler's view of the appointments table: it selects
// due reminders and records what was sent.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/outbox"
	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/reminders"
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// sentColumn maps a reminder kind to the appointment column that records it.
// The result is interpolated into SQL, so only fixed names are returned.
func sentColumn(kind reminders.Kind) (string, error) {
	switch kind {
	case reminders.KindConfirmation:
		return "confirmation_sent_at", nil
	case reminders.KindUrgent:
		return "reminder_sent_at", nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", kind)
}

func (r *Repository) FindAppointmentsInWindow(ctx context.Context, kind reminders.Kind, from, to time.Time) ([]reminders.Appointment, error) {
	col, err := sentColumn(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.shop_id::text, sh.name, sh.timezone, sv.name, COALESCE(st.name, ''),
		       a.client_name, a.client_email, a.client_phone, a.start_time
		FROM appointments a
		JOIN shops sh ON sh.id = a.shop_id
		JOIN services sv ON sv.id = a.service_id
		LEFT JOIN staff st ON st.id = a.staff_id
		WHERE a.status = 'scheduled'
		  AND a.`+col+` IS NULL
		  AND a.start_time >= $1
		  AND a.start_time < $2
		  AND NOT EXISTS (
		      SELECT 1 FROM reminder_attempts ra
		      WHERE ra.appointment_id = a.id AND ra.kind = $3 AND ra.status = 'skipped'
		  )
		ORDER BY a.start_time, a.id
	`, from.UTC(), to.UTC(), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminders.Appointment
	for rows.Next() {
		var a reminders.Appointment
		if err := rows.Scan(&a.ID, &a.ShopID, &a.ShopName, &a.Timezone, &a.ServiceName, &a.StaffName,
			&a.ClientName, &a.ClientEmail, &a.ClientPhone, &a.StartTime); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MarkReminderSent sets the kind's timestamp only while it is NULL, so of two
// concurrent callers exactly one sees true. The reminder.sent event is written in
// the same transaction.
func (r *Repository) MarkReminderSent(ctx context.Context, appointmentID string, kind reminders.Kind, at time.Time) (bool, error) {
	col, err := sentColumn(kind)
	if err != nil {
		return false, err
	}
	marked := false
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET `+col+` = $2, updated_at = now()
			WHERE id = $1 AND `+col+` IS NULL
		`, appointmentID, at.UTC())
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}
		evt, err := outbox.NewEvent("appointment", appointmentID, outbox.EventReminderSent, map[string]any{
			"appointment_id": appointmentID,
			"kind":           string(kind),
			"sent_at":        at.UTC(),
		})
		if err != nil {
			return err
		}
		marked = true
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return false, err
	}
	return marked, nil
}

// RecordAttempt appends to the attempt log. Failed attempts also emit a
// reminder.failed event.
func (r *Repository) RecordAttempt(ctx context.Context, a reminders.Attempt) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reminder_attempts (appointment_id, kind, channel, recipient, status, reason, attempted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.AppointmentID, string(a.Kind), string(a.Channel), a.Recipient, string(a.Status), a.Reason, a.At.UTC()); err != nil {
			return err
		}
		if a.Status != reminders.AttemptFailed {
			return nil
		}
		evt, err := outbox.NewEvent("appointment", a.AppointmentID, outbox.EventReminderFailed, map[string]any{
			"appointment_id": a.AppointmentID,
			"kind":           string(a.Kind),
			"channel":        string(a.Channel),
			"reason":         a.Reason,
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}

// CountAttempts reports how many attempts of kind were logged for an appointment.
func (r *Repository) CountAttempts(ctx context.Context, appointmentID string, kind reminders.Kind) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM reminder_attempts WHERE appointment_id = $1 AND kind = $2
	`, appointmentID, string(kind)).Scan(&n)
	return n, err
}
