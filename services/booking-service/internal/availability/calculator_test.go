package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type fakeStore struct {
	getShop      func(ctx context.Context, shopID string) (model.Shop, error)
	findHours    func(ctx context.Context, shopID, staffID string, weekday time.Weekday) ([]model.OpenInterval, error)
	listStaff    func(ctx context.Context, shopID string) ([]model.Staff, error)
	findAppts    func(ctx context.Context, staffID string, within interval.Interval) ([]model.Appointment, error)
	findTimeOff  func(ctx context.Context, staffID string, within interval.Interval) ([]model.TimeOff, error)
	getShopCalls int
}

func (f *fakeStore) GetShop(ctx context.Context, shopID string) (model.Shop, error) {
	f.getShopCalls++
	if f.getShop == nil {
		return model.Shop{ID: shopID, Timezone: "UTC"}, nil
	}
	return f.getShop(ctx, shopID)
}

func (f *fakeStore) FindBusinessHours(ctx context.Context, shopID, staffID string, weekday time.Weekday) ([]model.OpenInterval, error) {
	if f.findHours == nil {
		panic("unexpected FindBusinessHours")
	}
	return f.findHours(ctx, shopID, staffID, weekday)
}

func (f *fakeStore) ListActiveStaff(ctx context.Context, shopID string) ([]model.Staff, error) {
	if f.listStaff == nil {
		panic("unexpected ListActiveStaff")
	}
	return f.listStaff(ctx, shopID)
}

func (f *fakeStore) FindScheduledAppointments(ctx context.Context, staffID string, within interval.Interval) ([]model.Appointment, error) {
	if f.findAppts == nil {
		return nil, nil
	}
	return f.findAppts(ctx, staffID, within)
}

func (f *fakeStore) FindTimeOff(ctx context.Context, staffID string, within interval.Interval) ([]model.TimeOff, error) {
	if f.findTimeOff == nil {
		return nil, nil
	}
	return f.findTimeOff(ctx, staffID, within)
}

var monday = interval.Date{Year: 2026, Month: time.March, Day: 2}

func nineToFive(context.Context, string, string, time.Weekday) ([]model.OpenInterval, error) {
	return []model.OpenInterval{{StartMinute: 9 * 60, EndMinute: 17 * 60}}, nil
}

func twoStaff(context.Context, string) ([]model.Staff, error) {
	return []model.Staff{{ID: "staff-b"}, {ID: "staff-a"}}, nil
}

func newTestCalculator(store *fakeStore, now time.Time) *Calculator {
	return NewCalculator(store, NewPolicyResolver(store, Defaults{Granularity: 30 * time.Minute}), func() time.Time { return now })
}

func utc(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestCalculator_ScenarioA(t *testing.T) {
	store := &fakeStore{
		findHours: nineToFive,
		listStaff: twoStaff,
		findAppts: func(_ context.Context, staffID string, _ interval.Interval) ([]model.Appointment, error) {
			return []model.Appointment{{StaffID: staffID, StartTime: utc(10, 0), EndTime: utc(10, 30), Status: model.StatusScheduled}}, nil
		},
	}
	calc := newTestCalculator(store, utc(0, 0))

	slots, err := calc.Slots(context.Background(), Query{ShopID: "shop-1", StaffID: "staff-a", Date: monday, Duration: 30 * time.Minute})
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(utc(10, 0)) {
			t.Fatalf("10:00 should be booked")
		}
		if s.StaffID != "staff-a" {
			t.Fatalf("unexpected staff %s", s.StaffID)
		}
		if s.End.Sub(s.Start) != 30*time.Minute {
			t.Fatalf("slot length %s", s.End.Sub(s.Start))
		}
	}
}

func TestCalculator_AnyStaffMergesInOrder(t *testing.T) {
	store := &fakeStore{
		findHours: func(context.Context, string, string, time.Weekday) ([]model.OpenInterval, error) {
			return []model.OpenInterval{{StartMinute: 9 * 60, EndMinute: 10 * 60}}, nil
		},
		listStaff: twoStaff,
		findAppts: func(_ context.Context, staffID string, _ interval.Interval) ([]model.Appointment, error) {
			if staffID == "staff-b" {
				return []model.Appointment{{StartTime: utc(9, 0), EndTime: utc(9, 30)}}, nil
			}
			return nil, nil
		},
	}
	calc := newTestCalculator(store, utc(0, 0))

	slots, err := calc.Slots(context.Background(), Query{ShopID: "shop-1", Date: monday, Duration: 30 * time.Minute})
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	want := []struct {
		start time.Time
		staff string
	}{
		{utc(9, 0), "staff-a"},
		{utc(9, 30), "staff-a"},
		{utc(9, 30), "staff-b"},
	}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %+v", len(want), slots)
	}
	for i, w := range want {
		if !slots[i].Start.Equal(w.start) || slots[i].StaffID != w.staff {
			t.Fatalf("slot %d = %s/%s, want %s/%s", i, slots[i].Start.Format("15:04"), slots[i].StaffID, w.start.Format("15:04"), w.staff)
		}
	}
}

func TestCalculator_NoHoursIsEmpty(t *testing.T) {
	store := &fakeStore{
		findHours: func(context.Context, string, string, time.Weekday) ([]model.OpenInterval, error) { return nil, nil },
		listStaff: twoStaff,
		findAppts: func(context.Context, string, interval.Interval) ([]model.Appointment, error) {
			panic("appointments must not be read without business hours")
		},
	}
	slots, err := newTestCalculator(store, utc(0, 0)).Slots(context.Background(), Query{ShopID: "shop-1", Date: monday, Duration: time.Hour})
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestCalculator_TimeOffAndLead(t *testing.T) {
	store := &fakeStore{
		getShop: func(_ context.Context, shopID string) (model.Shop, error) {
			lead := time.Hour
			return model.Shop{ID: shopID, Timezone: "UTC", MinLead: &lead}, nil
		},
		findHours: nineToFive,
		listStaff: twoStaff,
		findTimeOff: func(context.Context, string, interval.Interval) ([]model.TimeOff, error) {
			return []model.TimeOff{{Start: utc(12, 0), End: utc(17, 0)}}, nil
		},
	}
	// now 09:10 plus one hour of lead: first bookable start is 10:30 on the 30m grid.
	calc := newTestCalculator(store, utc(9, 10))
	slots, err := calc.Slots(context.Background(), Query{ShopID: "shop-1", StaffID: "staff-a", Date: monday, Duration: 30 * time.Minute})
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	var got []string
	for _, s := range slots {
		got = append(got, s.Start.Format("15:04"))
	}
	want := []string{"10:30", "11:00", "11:30"}
	if len(got) != len(want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slots = %v, want %v", got, want)
		}
	}
}

func TestCalculator_LocalBusinessHours(t *testing.T) {
	store := &fakeStore{
		getShop: func(_ context.Context, shopID string) (model.Shop, error) {
			return model.Shop{ID: shopID, Timezone: "Asia/Dhaka"}, nil
		},
		findHours: func(_ context.Context, _, _ string, weekday time.Weekday) ([]model.OpenInterval, error) {
			if weekday != time.Monday {
				t.Fatalf("weekday = %s", weekday)
			}
			return []model.OpenInterval{{StartMinute: 9 * 60, EndMinute: 10 * 60}}, nil
		},
		listStaff: twoStaff,
	}
	slots, err := newTestCalculator(store, utc(0, 0).Add(-24*time.Hour)).Slots(context.Background(), Query{ShopID: "shop-1", StaffID: "staff-a", Date: monday, Duration: time.Hour})
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 09:00 in Dhaka (UTC+6) is 03:00 UTC.
	if len(slots) != 1 || !slots[0].Start.Equal(utc(3, 0)) {
		t.Fatalf("unexpected slots %+v", slots)
	}
}

func TestCalculator_UnknownStaff(t *testing.T) {
	store := &fakeStore{findHours: nineToFive, listStaff: twoStaff}
	_, err := newTestCalculator(store, utc(0, 0)).Slots(context.Background(), Query{ShopID: "shop-1", StaffID: "nobody", Date: monday, Duration: time.Hour})
	if !errors.Is(err, ErrStaffNotFound) {
		t.Fatalf("expected ErrStaffNotFound, got %v", err)
	}
}

func TestPolicyResolver_Caches(t *testing.T) {
	store := &fakeStore{}
	r := NewPolicyResolver(store, Defaults{Granularity: 15 * time.Minute, MinLead: 30 * time.Minute})
	for i := 0; i < 3; i++ {
		p, err := r.Resolve(context.Background(), "shop-1")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if p.Granularity != 15*time.Minute || p.MinLead != 30*time.Minute {
			t.Fatalf("unexpected policy %+v", p)
		}
	}
	if store.getShopCalls != 1 {
		t.Fatalf("GetShop called %d times, want 1", store.getShopCalls)
	}
	r.Invalidate("shop-1")
	if _, err := r.Resolve(context.Background(), "shop-1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if store.getShopCalls != 2 {
		t.Fatalf("GetShop called %d times after invalidate, want 2", store.getShopCalls)
	}
}

// A second replica never sees the first one's Invalidate; its entry expires on its own.
func TestPolicyResolver_OtherReplicaExpires(t *testing.T) {
	if _, err := time.LoadLocation("Europe/Berlin"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tz := "UTC"
	store := &fakeStore{getShop: func(_ context.Context, id string) (model.Shop, error) {
		return model.Shop{ID: id, Timezone: tz}, nil
	}}
	updater := NewPolicyResolver(store, Defaults{CacheTTL: time.Minute})
	replica := NewPolicyResolver(store, Defaults{CacheTTL: 30 * time.Millisecond})
	ctx := context.Background()
	if _, err := replica.Resolve(ctx, "shop-1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	tz = "Europe/Berlin"
	updater.Invalidate("shop-1")
	if p, _ := replica.Resolve(ctx, "shop-1"); p.Location.String() != "UTC" {
		t.Fatalf("replica refreshed before its TTL: %s", p.Location)
	}
	time.Sleep(60 * time.Millisecond)
	p, err := replica.Resolve(ctx, "shop-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Location.String() != "Europe/Berlin" {
		t.Fatalf("replica still serves %s after TTL", p.Location)
	}
}

func TestPolicyResolver_BadTimezone(t *testing.T) {
	store := &fakeStore{getShop: func(_ context.Context, id string) (model.Shop, error) {
		return model.Shop{ID: id, Timezone: "Mars/Olympus"}, nil
	}}
	if _, err := NewPolicyResolver(store, Defaults{}).Resolve(context.Background(), "shop-1"); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestCalculator_Fits(t *testing.T) {
	store := &fakeStore{
		findHours: nineToFive,
		listStaff: twoStaff,
		findAppts: func(context.Context, string, interval.Interval) ([]model.Appointment, error) {
			return []model.Appointment{{StartTime: utc(14, 0), EndTime: utc(14, 45)}}, nil
		},
	}
	calc := newTestCalculator(store, utc(0, 0))
	policy, err := calc.Policies().Resolve(context.Background(), "shop-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	cases := []struct {
		name          string
		iv            interval.Interval
		inHours, free bool
	}{
		{"free", interval.New(utc(9, 0), time.Hour), true, true},
		{"ends when other starts", interval.New(utc(13, 15), 45*time.Minute), true, true},
		{"starts when other ends", interval.New(utc(14, 45), 30*time.Minute), true, true},
		{"overlaps", interval.New(utc(14, 30), 30*time.Minute), true, false},
		{"past closing", interval.New(utc(16, 30), time.Hour), false, false},
		{"before opening", interval.New(utc(8, 30), time.Hour), false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inHours, free, err := calc.Fits(context.Background(), policy, "staff-a", tc.iv)
			if err != nil {
				t.Fatalf("Fits: %v", err)
			}
			if inHours != tc.inHours || free != tc.free {
				t.Fatalf("Fits = (%v, %v), want (%v, %v)", inHours, free, tc.inHours, tc.free)
			}
		})
	}
}
