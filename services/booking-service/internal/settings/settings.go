// Package settings loads the booking policy defaults. Per-shop values in the
// shops table take precedence over these.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Settings struct {
	SlotGranularity      time.Duration
	MinLead              time.Duration
	MaxDuration          time.Duration
	AvailabilityCacheTTL time.Duration
}

func Load() (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("APPTBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("slot.granularity", "15m")
	v.SetDefault("booking.min_lead", "30m")
	v.SetDefault("booking.max_duration", "8h")
	v.SetDefault("availability.cache_ttl", "1m")

	_ = v.BindEnv("slot.granularity", "APPTBOOK_SLOT_GRANULARITY", "SLOT_GRANULARITY")
	_ = v.BindEnv("booking.min_lead", "APPTBOOK_BOOKING_MIN_LEAD", "BOOKING_MIN_LEAD")
	_ = v.BindEnv("booking.max_duration", "APPTBOOK_BOOKING_MAX_DURATION")
	_ = v.BindEnv("availability.cache_ttl", "APPTBOOK_AVAILABILITY_CACHE_TTL")

	granularity, err := duration(v, "slot.granularity")
	if err != nil {
		return Settings{}, err
	}
	if granularity < time.Minute || granularity%time.Minute != 0 {
		return Settings{}, fmt.Errorf("slot.granularity must be a whole number of minutes (got %s)", granularity)
	}
	minLead, err := duration(v, "booking.min_lead")
	if err != nil {
		return Settings{}, err
	}
	if minLead < 0 {
		return Settings{}, fmt.Errorf("booking.min_lead must not be negative")
	}
	maxDuration, err := duration(v, "booking.max_duration")
	if err != nil {
		return Settings{}, err
	}
	if maxDuration <= 0 {
		return Settings{}, fmt.Errorf("booking.max_duration must be positive")
	}
	cacheTTL, err := duration(v, "availability.cache_ttl")
	if err != nil {
		return Settings{}, err
	}
	// Shop updates only invalidate the local replica's cache; others catch up
	// within the TTL.
	if cacheTTL <= 0 || cacheTTL > MaxAvailabilityCacheTTL {
		return Settings{}, fmt.Errorf("availability.cache_ttl must be in (0, %s] (got %s)", MaxAvailabilityCacheTTL, cacheTTL)
	}

	return Settings{
		SlotGranularity:      granularity,
		MinLead:              minLead,
		MaxDuration:          maxDuration,
		AvailabilityCacheTTL: cacheTTL,
	}, nil
}

// MaxAvailabilityCacheTTL bounds how long a replica may serve a shop's old
// timezone, grid or lead time after another replica updated it.
const MaxAvailabilityCacheTTL = 5 * time.Minute

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
