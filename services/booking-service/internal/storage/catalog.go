package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

// Write side of the shop catalog: shops, services, staff, business hours and
// staff time-off. The availability calculator reads what is written here.

func (r *Repository) CreateShop(ctx context.Context, shop model.Shop) (model.Shop, error) {
	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shops (id, name, timezone, slot_granularity_minutes, min_lead_minutes)
		VALUES ($1, $2, $3, $4, $5)
	`, shop.ID, shop.Name, shop.Timezone, durationMinutes(shop.SlotGranularity), durationMinutes(shop.MinLead))
	if err != nil {
		return model.Shop{}, classify(err)
	}
	return shop, nil
}

// UpdateShop overwrites the shop's name and scheduling settings.
func (r *Repository) UpdateShop(ctx context.Context, shop model.Shop) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE shops
		SET name = $2, timezone = $3, slot_granularity_minutes = $4, min_lead_minutes = $5
		WHERE id = $1
	`, shop.ID, shop.Name, shop.Timezone, durationMinutes(shop.SlotGranularity), durationMinutes(shop.MinLead))
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateService(ctx context.Context, svc model.Service) (model.Service, error) {
	svc.ID = uuid.NewString()
	svc.Active = true
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, shop_id, name, duration_minutes)
		VALUES ($1, $2, $3, $4)
	`, svc.ID, svc.ShopID, svc.Name, svc.DurationMinutes)
	if err != nil {
		return model.Service{}, classify(err)
	}
	return svc, nil
}

func (r *Repository) ListServices(ctx context.Context, shopID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, name, duration_minutes, is_active
		FROM services
		WHERE shop_id = $1
		ORDER BY name ASC, id ASC
	`, shopID)
	if err != nil {
		return nil, classify(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Service, error) {
		var s model.Service
		err := row.Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMinutes, &s.Active)
		return s, err
	})
}

func (r *Repository) CreateStaff(ctx context.Context, staff model.Staff) (model.Staff, error) {
	staff.ID = uuid.NewString()
	staff.Active = true
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff (id, shop_id, name)
		VALUES ($1, $2, $3)
	`, staff.ID, staff.ShopID, staff.Name)
	if err != nil {
		return model.Staff{}, classify(err)
	}
	return staff, nil
}

// ListStaff returns every staff member of the shop, active or not.
func (r *Repository) ListStaff(ctx context.Context, shopID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, name, is_active
		FROM staff
		WHERE shop_id = $1
		ORDER BY id ASC
	`, shopID)
	if err != nil {
		return nil, classify(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Staff, error) {
		var s model.Staff
		err := row.Scan(&s.ID, &s.ShopID, &s.Name, &s.Active)
		return s, err
	})
}

// SetStaffActive toggles whether the staff member is offered for bookings.
// Existing appointments are left alone.
func (r *Repository) SetStaffActive(ctx context.Context, shopID, staffID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE staff SET is_active = $3 WHERE id = $2 AND shop_id = $1
	`, shopID, staffID, active)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceBusinessHours swaps the weekday's schedule for the shop, or for one
// staff member when hours.StaffID is set. Empty intervals close the day; for a
// staff member that removes the override so the shop schedule applies again.
func (r *Repository) ReplaceBusinessHours(ctx context.Context, shopID string, hours model.BusinessHours) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var staffID *string
	if hours.StaffID != "" {
		if err := staffInShop(ctx, tx, shopID, hours.StaffID); err != nil {
			return err
		}
		staffID = &hours.StaffID
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM business_hours
		WHERE shop_id = $1 AND weekday = $2 AND staff_id IS NOT DISTINCT FROM $3::uuid
	`, shopID, int(hours.Weekday), staffID); err != nil {
		return classify(err)
	}
	for _, iv := range hours.Intervals {
		if _, err := tx.Exec(ctx, `
			INSERT INTO business_hours (shop_id, staff_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, shopID, staffID, int(hours.Weekday), iv.StartMinute, iv.EndMinute); err != nil {
			return classify(err)
		}
	}
	return tx.Commit(ctx)
}

// ListBusinessHours returns the stored schedule rows of the shop, or of one
// staff member's overrides, grouped by weekday.
func (r *Repository) ListBusinessHours(ctx context.Context, shopID, staffID string) ([]model.BusinessHours, error) {
	var sid *string
	if staffID != "" {
		sid = &staffID
	}
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM business_hours
		WHERE shop_id = $1 AND staff_id IS NOT DISTINCT FROM $2::uuid
		ORDER BY weekday ASC, start_minute ASC
	`, shopID, sid)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.BusinessHours
	for rows.Next() {
		var (
			weekday int
			iv      model.OpenInterval
		)
		if err := rows.Scan(&weekday, &iv.StartMinute, &iv.EndMinute); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].Weekday != time.Weekday(weekday) {
			out = append(out, model.BusinessHours{StaffID: staffID, Weekday: time.Weekday(weekday)})
		}
		last := &out[len(out)-1]
		last.Intervals = append(last.Intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) CreateTimeOff(ctx context.Context, shopID string, off model.TimeOff) (model.TimeOff, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.TimeOff{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := staffInShop(ctx, tx, shopID, off.StaffID); err != nil {
		return model.TimeOff{}, err
	}
	off.ID = uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO staff_time_off (id, staff_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, off.ID, off.StaffID, off.Start.UTC(), off.End.UTC(), off.Reason); err != nil {
		return model.TimeOff{}, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.TimeOff{}, err
	}
	return off, nil
}

func (r *Repository) DeleteTimeOff(ctx context.Context, shopID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_time_off t
		USING staff s
		WHERE t.staff_id = s.id
		  AND s.shop_id = $1
		  AND t.id = $2
	`, shopID, timeOffID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func staffInShop(ctx context.Context, tx pgx.Tx, shopID, staffID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM staff WHERE id = $1 AND shop_id = $2)
	`, staffID, shopID).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func durationMinutes(d *time.Duration) *int32 {
	if d == nil {
		return nil
	}
	m := int32(*d / time.Minute)
	return &m
}
