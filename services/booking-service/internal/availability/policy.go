package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/patrickmn/go-cache"
)

// Policy is the resolved scheduling policy of one shop.
type Policy struct {
	ShopID      string
	Location    *time.Location
	Granularity time.Duration
	MinLead     time.Duration
}

type Defaults struct {
	Granularity time.Duration
	MinLead     time.Duration
	CacheTTL    time.Duration
}

type ShopReader interface {
	GetShop(ctx context.Context, shopID string) (model.Shop, error)
}

// PolicyResolver caches shop settings only. Slots and appointments are always read fresh.
// Invalidate clears this process's entry; other replicas keep the old policy until
// their entry expires after CacheTTL.
type PolicyResolver struct {
	shops    ShopReader
	defaults Defaults
	cache    *cache.Cache
}

func NewPolicyResolver(shops ShopReader, defaults Defaults) *PolicyResolver {
	if defaults.Granularity <= 0 {
		defaults.Granularity = 15 * time.Minute
	}
	if defaults.CacheTTL <= 0 {
		defaults.CacheTTL = time.Minute
	}
	return &PolicyResolver{
		shops:    shops,
		defaults: defaults,
		cache:    cache.New(defaults.CacheTTL, 2*defaults.CacheTTL),
	}
}

func (r *PolicyResolver) Resolve(ctx context.Context, shopID string) (Policy, error) {
	if v, ok := r.cache.Get(shopID); ok {
		return v.(Policy), nil
	}

	shop, err := r.shops.GetShop(ctx, shopID)
	if err != nil {
		return Policy{}, err
	}
	loc, err := shop.Location()
	if err != nil {
		return Policy{}, fmt.Errorf("shop %s timezone %q: %w", shopID, shop.Timezone, err)
	}

	p := Policy{
		ShopID:      shop.ID,
		Location:    loc,
		Granularity: r.defaults.Granularity,
		MinLead:     r.defaults.MinLead,
	}
	if shop.SlotGranularity != nil && *shop.SlotGranularity > 0 {
		p.Granularity = *shop.SlotGranularity
	}
	if shop.MinLead != nil && *shop.MinLead >= 0 {
		p.MinLead = *shop.MinLead
	}
	r.cache.SetDefault(shopID, p)
	return p, nil
}

func (r *PolicyResolver) Invalidate(shopID string) {
	r.cache.Delete(shopID)
}
