package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

func (r *Repository) GetShop(ctx context.Context, shopID string) (model.Shop, error) {
	var (
		shop        model.Shop
		granularity *int32
		lead        *int32
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, slot_granularity_minutes, min_lead_minutes
		FROM shops
		WHERE id = $1
	`, shopID).Scan(&shop.ID, &shop.Name, &shop.Timezone, &granularity, &lead)
	if err != nil {
		return model.Shop{}, classify(err)
	}
	shop.SlotGranularity = minutesPtr(granularity)
	shop.MinLead = minutesPtr(lead)
	return shop, nil
}

func (r *Repository) GetService(ctx context.Context, shopID, serviceID string) (model.Service, error) {
	var svc model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, shop_id::text, name, duration_minutes, is_active
		FROM services
		WHERE id = $1 AND shop_id = $2
	`, serviceID, shopID).Scan(&svc.ID, &svc.ShopID, &svc.Name, &svc.DurationMinutes, &svc.Active)
	if err != nil {
		return model.Service{}, classify(err)
	}
	return svc, nil
}

func (r *Repository) ListActiveStaff(ctx context.Context, shopID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, name
		FROM staff
		WHERE shop_id = $1 AND is_active
		ORDER BY id ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.ShopID, &s.Name); err != nil {
			return nil, err
		}
		s.Active = true
		staff = append(staff, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return staff, nil
}

func (r *Repository) FindBusinessHours(ctx context.Context, shopID, staffID string, weekday time.Weekday) ([]model.OpenInterval, error) {
	// Staff rows win over shop rows for the same weekday.
	rows, err := r.pool.Query(ctx, `
		WITH staff_rows AS (
			SELECT start_minute, end_minute
			FROM business_hours
			WHERE shop_id = $1 AND weekday = $3 AND staff_id IS NOT NULL AND staff_id::text = $2
		)
		SELECT start_minute, end_minute FROM staff_rows
		UNION ALL
		SELECT start_minute, end_minute
		FROM business_hours
		WHERE shop_id = $1 AND weekday = $3 AND staff_id IS NULL
			AND NOT EXISTS (SELECT 1 FROM staff_rows)
		ORDER BY start_minute ASC
	`, shopID, staffID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []model.OpenInterval
	for rows.Next() {
		var h model.OpenInterval
		if err := rows.Scan(&h.StartMinute, &h.EndMinute); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return hours, nil
}

func (r *Repository) FindTimeOff(ctx context.Context, staffID string, within interval.Interval) ([]model.TimeOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, staff_id::text, start_time, end_time, reason
		FROM staff_time_off
		WHERE staff_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, staffID, within.Start, within.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offs []model.TimeOff
	for rows.Next() {
		var o model.TimeOff
		if err := rows.Scan(&o.ID, &o.StaffID, &o.Start, &o.End, &o.Reason); err != nil {
			return nil, err
		}
		offs = append(offs, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return offs, nil
}

func minutesPtr(v *int32) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v) * time.Minute
	return &d
}
