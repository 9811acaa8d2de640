package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/metrics"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var ErrStaffNotFound = errors.New("staff not found")

// Store is the read side of the appointment store used for availability.
type Store interface {
	ShopReader
	// FindBusinessHours returns the open intervals for weekday. Staff-specific rows
	// replace the shop rows when staffID has any for that weekday.
	FindBusinessHours(ctx context.Context, shopID, staffID string, weekday time.Weekday) ([]model.OpenInterval, error)
	// ListActiveStaff returns active staff ordered by id.
	ListActiveStaff(ctx context.Context, shopID string) ([]model.Staff, error)
	FindScheduledAppointments(ctx context.Context, staffID string, within interval.Interval) ([]model.Appointment, error)
	FindTimeOff(ctx context.Context, staffID string, within interval.Interval) ([]model.TimeOff, error)
}

type Query struct {
	ShopID   string
	StaffID  string // empty means any active staff member
	Date     interval.Date
	Duration time.Duration
}

type Calculator struct {
	store    Store
	policies *PolicyResolver
	now      func() time.Time
}

func NewCalculator(store Store, policies *PolicyResolver, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{store: store, policies: policies, now: now}
}

func (c *Calculator) Policies() *PolicyResolver {
	return c.policies
}

// Slots returns bookable slots ordered by start, then staff id. An empty result is not an error.
func (c *Calculator) Slots(ctx context.Context, q Query) ([]model.TimeSlot, error) {
	ctx, span := otel.Tracer("booking-service/availability").Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("shop_id", q.ShopID),
		attribute.String("date", q.Date.String()),
		attribute.Bool("any_staff", q.StaffID == ""),
	)

	mode := "staff"
	if q.StaffID == "" {
		mode = "any"
	}
	start := time.Now()
	defer func() {
		metrics.AvailabilityQueries.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	if q.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}
	policy, err := c.policies.Resolve(ctx, q.ShopID)
	if err != nil {
		return nil, err
	}
	candidates, err := c.Candidates(ctx, q.ShopID, q.StaffID)
	if err != nil {
		return nil, err
	}

	notBefore := c.now().Add(policy.MinLead)
	var out []model.TimeSlot
	for _, staff := range candidates {
		open, busy, err := c.staffDay(ctx, policy, staff.ID, q.Date)
		if err != nil {
			return nil, err
		}
		for _, s := range AvailableSlots(open, busy, q.Duration, policy.Granularity, notBefore, policy.Location) {
			out = append(out, model.TimeSlot{Start: s.UTC(), End: s.Add(q.Duration).UTC(), StaffID: staff.ID})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].StaffID < out[j].StaffID
	})
	return out, nil
}

// Candidates returns the requested staff member, or every active staff member
// of the shop ordered by id when staffID is empty.
func (c *Calculator) Candidates(ctx context.Context, shopID, staffID string) ([]model.Staff, error) {
	staff, err := c.store.ListActiveStaff(ctx, shopID)
	if err != nil {
		return nil, err
	}
	sort.Slice(staff, func(i, j int) bool { return staff[i].ID < staff[j].ID })
	if staffID == "" {
		return staff, nil
	}
	for _, s := range staff {
		if s.ID == staffID {
			return []model.Staff{s}, nil
		}
	}
	return nil, ErrStaffNotFound
}

// Fits reports whether iv lies inside one of the staff member's open windows on its
// local day, and whether it clears their scheduled appointments and time off.
func (c *Calculator) Fits(ctx context.Context, policy Policy, staffID string, iv interval.Interval) (inHours bool, free bool, err error) {
	open, busy, err := c.staffDay(ctx, policy, staffID, interval.DateOf(iv.Start.In(policy.Location)))
	if err != nil {
		return false, false, err
	}
	if !WithinHours(open, iv) {
		return false, false, nil
	}
	return true, !interval.OverlapsAny(iv, busy), nil
}

// WithinHours reports whether iv fits entirely inside a single open window.
func WithinHours(open []interval.Interval, iv interval.Interval) bool {
	for _, w := range interval.Merge(open) {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}

// OpenWindows maps the staff member's business hours for date onto absolute instants.
func (c *Calculator) OpenWindows(ctx context.Context, policy Policy, staffID string, date interval.Date) ([]interval.Interval, error) {
	hours, err := c.store.FindBusinessHours(ctx, policy.ShopID, staffID, date.Weekday())
	if err != nil {
		return nil, err
	}
	open := make([]interval.Interval, 0, len(hours))
	for _, h := range hours {
		iv := interval.Interval{Start: date.At(h.StartMinute, policy.Location), End: date.At(h.EndMinute, policy.Location)}
		if iv.Valid() {
			open = append(open, iv)
		}
	}
	return open, nil
}

func (c *Calculator) staffDay(ctx context.Context, policy Policy, staffID string, date interval.Date) ([]interval.Interval, []interval.Interval, error) {
	open, err := c.OpenWindows(ctx, policy, staffID, date)
	if err != nil {
		return nil, nil, err
	}
	if len(open) == 0 {
		return nil, nil, nil
	}
	merged := interval.Merge(open)
	span := interval.Interval{Start: merged[0].Start, End: merged[len(merged)-1].End}

	appts, err := c.store.FindScheduledAppointments(ctx, staffID, span)
	if err != nil {
		return nil, nil, err
	}
	offs, err := c.store.FindTimeOff(ctx, staffID, span)
	if err != nil {
		return nil, nil, err
	}
	busy := make([]interval.Interval, 0, len(appts)+len(offs))
	for _, a := range appts {
		busy = append(busy, interval.Interval{Start: a.StartTime, End: a.EndTime})
	}
	for _, o := range offs {
		busy = append(busy, interval.Interval{Start: o.Start, End: o.End})
	}
	return open, busy, nil
}
