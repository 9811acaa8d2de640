package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/storage"
)

type fakeCatalog struct {
	Catalog
	createShop    func(ctx context.Context, shop model.Shop) (model.Shop, error)
	updateShop    func(ctx context.Context, shop model.Shop) error
	listStaff     func(ctx context.Context, shopID string) ([]model.Staff, error)
	replaceHours  func(ctx context.Context, shopID string, hours model.BusinessHours) error
	createTimeOff func(ctx context.Context, shopID string, off model.TimeOff) (model.TimeOff, error)
	deleteTimeOff func(ctx context.Context, shopID, id string) error
}

func (f fakeCatalog) CreateShop(ctx context.Context, shop model.Shop) (model.Shop, error) {
	if f.createShop == nil {
		panic("unexpected CreateShop")
	}
	return f.createShop(ctx, shop)
}

func (f fakeCatalog) UpdateShop(ctx context.Context, shop model.Shop) error {
	if f.updateShop == nil {
		panic("unexpected UpdateShop")
	}
	return f.updateShop(ctx, shop)
}

func (f fakeCatalog) ListStaff(ctx context.Context, shopID string) ([]model.Staff, error) {
	if f.listStaff == nil {
		panic("unexpected ListStaff")
	}
	return f.listStaff(ctx, shopID)
}

func (f fakeCatalog) ReplaceBusinessHours(ctx context.Context, shopID string, hours model.BusinessHours) error {
	if f.replaceHours == nil {
		panic("unexpected ReplaceBusinessHours")
	}
	return f.replaceHours(ctx, shopID, hours)
}

func (f fakeCatalog) CreateTimeOff(ctx context.Context, shopID string, off model.TimeOff) (model.TimeOff, error) {
	if f.createTimeOff == nil {
		panic("unexpected CreateTimeOff")
	}
	return f.createTimeOff(ctx, shopID, off)
}

func (f fakeCatalog) DeleteTimeOff(ctx context.Context, shopID, id string) error {
	if f.deleteTimeOff == nil {
		panic("unexpected DeleteTimeOff")
	}
	return f.deleteTimeOff(ctx, shopID, id)
}

type recordingCache struct{ invalidated []string }

func (c *recordingCache) Invalidate(shopID string) { c.invalidated = append(c.invalidated, shopID) }

func serveCatalog(catalog Catalog, cache PolicyCache, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	NewCatalogHandler(catalog, cache, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestShops_CreateAndUpdate(t *testing.T) {
	var got model.Shop
	cache := &recordingCache{}
	catalog := fakeCatalog{
		createShop: func(_ context.Context, shop model.Shop) (model.Shop, error) {
			got = shop
			shop.ID = "shop-1"
			return shop, nil
		},
		updateShop: func(_ context.Context, shop model.Shop) error {
			got = shop
			return nil
		},
	}

	rec := serveCatalog(catalog, cache, http.MethodPost, "/api/v1/shops",
		`{"name":"Corner Cuts","timezone":"Europe/Berlin","slot_granularity_minutes":20}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	if got.Timezone != "Europe/Berlin" || got.SlotGranularity == nil || *got.SlotGranularity != 20*time.Minute || got.MinLead != nil {
		t.Fatalf("created shop = %+v", got)
	}
	if len(cache.invalidated) != 0 {
		t.Fatalf("create should not touch the cache")
	}

	rec = serveCatalog(catalog, cache, http.MethodPut, "/api/v1/shops",
		`{"shop_id":"shop-1","name":"Corner Cuts","timezone":"UTC","min_lead_minutes":0}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body)
	}
	if got.MinLead == nil || *got.MinLead != 0 {
		t.Fatalf("explicit zero lead lost: %+v", got)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "shop-1" {
		t.Fatalf("invalidated = %v", cache.invalidated)
	}
}

func TestShops_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad timezone": `{"name":"x","timezone":"Mars/Olympus"}`,
		"zero grid":    `{"name":"x","timezone":"UTC","slot_granularity_minutes":0}`,
		"missing name": `{"timezone":"UTC"}`,
		"malformed":    `{`,
		"update no id": `{"name":"x","timezone":"UTC"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			method := http.MethodPost
			if name == "update no id" {
				method = http.MethodPut
			}
			rec := serveCatalog(fakeCatalog{}, &recordingCache{}, method, "/api/v1/shops", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestBusinessHours_Replace(t *testing.T) {
	var got model.BusinessHours
	catalog := fakeCatalog{replaceHours: func(_ context.Context, shopID string, hours model.BusinessHours) error {
		if shopID != "shop-1" {
			t.Errorf("shop = %q", shopID)
		}
		got = hours
		return nil
	}}
	rec := serveCatalog(catalog, nil, http.MethodPut, "/api/v1/business-hours",
		`{"shop_id":"shop-1","staff_id":"staff-a","weekday":1,"intervals":[{"start_minute":540,"end_minute":720},{"start_minute":780,"end_minute":1020}]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got.StaffID != "staff-a" || got.Weekday != time.Monday || len(got.Intervals) != 2 {
		t.Fatalf("hours = %+v", got)
	}

	// Sunday closed: weekday 0 must not trip the required check.
	rec = serveCatalog(catalog, nil, http.MethodPut, "/api/v1/business-hours", `{"shop_id":"shop-1","weekday":0,"intervals":[]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("closing a day: status = %d, body %s", rec.Code, rec.Body)
	}
	if got.Weekday != time.Sunday || len(got.Intervals) != 0 {
		t.Fatalf("hours = %+v", got)
	}
}

func TestBusinessHours_Rejects(t *testing.T) {
	tests := map[string]string{
		"overlap":       `{"shop_id":"s","weekday":1,"intervals":[{"start_minute":540,"end_minute":720},{"start_minute":700,"end_minute":800}]}`,
		"inverted":      `{"shop_id":"s","weekday":1,"intervals":[{"start_minute":720,"end_minute":540}]}`,
		"past midnight": `{"shop_id":"s","weekday":1,"intervals":[{"start_minute":540,"end_minute":1500}]}`,
		"bad weekday":   `{"shop_id":"s","weekday":7,"intervals":[]}`,
		"no weekday":    `{"shop_id":"s","intervals":[]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := serveCatalog(fakeCatalog{}, nil, http.MethodPut, "/api/v1/business-hours", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestTimeOff(t *testing.T) {
	catalog := fakeCatalog{
		createTimeOff: func(_ context.Context, _ string, off model.TimeOff) (model.TimeOff, error) {
			off.ID = "off-1"
			return off, nil
		},
		deleteTimeOff: func(_ context.Context, _ string, id string) error {
			if id != "off-1" {
				return storage.ErrNotFound
			}
			return nil
		},
	}

	rec := serveCatalog(catalog, nil, http.MethodPost, "/api/v1/time-off",
		`{"shop_id":"s","staff_id":"staff-a","start_time":"2026-03-02T12:00:00Z","end_time":"2026-03-02T13:00:00Z","reason":"dentist"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var item timeOffItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.ID != "off-1" || item.StartTime != "2026-03-02T12:00:00Z" {
		t.Fatalf("item = %+v", item)
	}

	rec = serveCatalog(catalog, nil, http.MethodPost, "/api/v1/time-off",
		`{"shop_id":"s","staff_id":"staff-a","start_time":"2026-03-02T13:00:00Z","end_time":"2026-03-02T12:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted status = %d", rec.Code)
	}

	if rec := serveCatalog(catalog, nil, http.MethodDelete, "/api/v1/time-off?shop_id=s&id=off-1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := serveCatalog(catalog, nil, http.MethodDelete, "/api/v1/time-off?shop_id=s&id=nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d", rec.Code)
	}
}

func TestStaff_List(t *testing.T) {
	catalog := fakeCatalog{listStaff: func(context.Context, string) ([]model.Staff, error) {
		return []model.Staff{{ID: "staff-a", Name: "Sam", Active: true}, {ID: "staff-b", Name: "Kim"}}, nil
	}}
	rec := serveCatalog(catalog, nil, http.MethodGet, "/api/v1/staff?shop_id=s", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var items []staffItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 || !items[0].Active || items[1].Active {
		t.Fatalf("items = %+v", items)
	}
	if rec := serveCatalog(catalog, nil, http.MethodGet, "/api/v1/staff", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing shop_id status = %d", rec.Code)
	}
}
