// Package settings loads the reminder schedule.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/scheduler-service/internal/reminders"
	"github.com/spf13/viper"
)

type Settings struct {
	Reminders reminders.Config
	// LeaseTTL bounds how long one replica may hold the run lease.
	LeaseTTL time.Duration
}

func Load() (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("APPTBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := reminders.DefaultConfig()
	v.SetDefault("reminders.run_interval", def.RunInterval.String())
	v.SetDefault("reminders.confirmation.lead", def.Confirmation.Lead.String())
	v.SetDefault("reminders.confirmation.half_band", def.Confirmation.HalfBand.String())
	v.SetDefault("reminders.urgent.lead", def.Urgent.Lead.String())
	v.SetDefault("reminders.urgent.half_band", def.Urgent.HalfBand.String())
	v.SetDefault("reminders.send_timeout", def.SendTimeout.String())
	v.SetDefault("reminders.concurrency", def.Concurrency)
	v.SetDefault("reminders.rate_per_second", def.RatePerSecond)
	v.SetDefault("reminders.lease_ttl", "")

	_ = v.BindEnv("reminders.run_interval", "APPTBOOK_REMINDERS_RUN_INTERVAL", "REMINDERS_RUN_INTERVAL")
	_ = v.BindEnv("reminders.send_timeout", "APPTBOOK_REMINDERS_SEND_TIMEOUT")
	_ = v.BindEnv("reminders.concurrency", "APPTBOOK_REMINDERS_CONCURRENCY")
	_ = v.BindEnv("reminders.rate_per_second", "APPTBOOK_REMINDERS_RATE_PER_SECOND")
	_ = v.BindEnv("reminders.lease_ttl", "APPTBOOK_REMINDERS_LEASE_TTL")

	var (
		cfg = reminders.Config{
			Concurrency:   v.GetInt("reminders.concurrency"),
			RatePerSecond: v.GetFloat64("reminders.rate_per_second"),
		}
		err error
	)
	for key, dst := range map[string]*time.Duration{
		"reminders.run_interval":           &cfg.RunInterval,
		"reminders.confirmation.lead":      &cfg.Confirmation.Lead,
		"reminders.confirmation.half_band": &cfg.Confirmation.HalfBand,
		"reminders.urgent.lead":            &cfg.Urgent.Lead,
		"reminders.urgent.half_band":       &cfg.Urgent.HalfBand,
		"reminders.send_timeout":           &cfg.SendTimeout,
	} {
		if *dst, err = duration(v, key); err != nil {
			return Settings{}, err
		}
	}
	if cfg.RatePerSecond < 0 {
		return Settings{}, fmt.Errorf("reminders.rate_per_second must not be negative")
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("reminders: %w", err)
	}

	leaseTTL := cfg.RunInterval
	if raw := strings.TrimSpace(v.GetString("reminders.lease_ttl")); raw != "" {
		if leaseTTL, err = time.ParseDuration(raw); err != nil {
			return Settings{}, fmt.Errorf("reminders.lease_ttl: %w", err)
		}
		if leaseTTL <= 0 {
			return Settings{}, fmt.Errorf("reminders.lease_ttl must be positive")
		}
	}

	return Settings{Reminders: cfg, LeaseTTL: leaseTTL}, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
