package reminders

import (
	"fmt"
	"time"
)

// Kind names a reminder channel. Each appointment gets at most one reminder per kind.
type Kind string

const (
	// KindConfirmation is the day-ahead reminder tracked by confirmation_sent_at.
	KindConfirmation Kind = "24h"
	// KindUrgent is the short-notice reminder tracked by reminder_sent_at.
	KindUrgent Kind = "2h"
)

// Kinds is the order a full run processes windows in.
var Kinds = []Kind{KindConfirmation, KindUrgent}

func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindConfirmation, KindUrgent:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", raw)
}

// WindowConfig selects appointments starting within Lead ± HalfBand of now.
type WindowConfig struct {
	Lead     time.Duration
	HalfBand time.Duration
}

type Config struct {
	Confirmation  WindowConfig
	Urgent        WindowConfig
	RunInterval   time.Duration
	SendTimeout   time.Duration
	Concurrency   int
	RatePerSecond float64
}

func DefaultConfig() Config {
	return Config{
		Confirmation:  WindowConfig{Lead: 24 * time.Hour, HalfBand: time.Hour},
		Urgent:        WindowConfig{Lead: 2 * time.Hour, HalfBand: 30 * time.Minute},
		RunInterval:   15 * time.Minute,
		SendTimeout:   10 * time.Second,
		Concurrency:   4,
		RatePerSecond: 10,
	}
}

// Validate rejects configurations that can skip appointments: consecutive runs must
// see overlapping windows, so each band must be at least as wide as the run interval.
func (c Config) Validate() error {
	if c.RunInterval <= 0 {
		return fmt.Errorf("run interval must be positive")
	}
	for _, k := range Kinds {
		w := c.Window(k)
		if w.Lead <= 0 || w.HalfBand <= 0 {
			return fmt.Errorf("%s window: lead and half band must be positive", k)
		}
		if w.HalfBand >= w.Lead {
			return fmt.Errorf("%s window: half band %s must be shorter than lead %s", k, w.HalfBand, w.Lead)
		}
		if 2*w.HalfBand < c.RunInterval {
			return fmt.Errorf("%s window: band %s is narrower than run interval %s", k, 2*w.HalfBand, c.RunInterval)
		}
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	return nil
}

func (c Config) Window(k Kind) WindowConfig {
	if k == KindUrgent {
		return c.Urgent
	}
	return c.Confirmation
}

// Bounds returns the half-open start-time range [from, to) a run at now selects for k.
func (c Config) Bounds(k Kind, now time.Time) (from, to time.Time) {
	w := c.Window(k)
	return now.Add(w.Lead - w.HalfBand), now.Add(w.Lead + w.HalfBand)
}
