package reminders

import (
	"testing"
	"time"
)

func TestBounds(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	from, to := cfg.Bounds(KindConfirmation, now)
	if !from.Equal(now.Add(23*time.Hour)) || !to.Equal(now.Add(25*time.Hour)) {
		t.Fatalf("24h window = %s..%s", from, to)
	}
	from, to = cfg.Bounds(KindUrgent, now)
	if !from.Equal(now.Add(90*time.Minute)) || !to.Equal(now.Add(150*time.Minute)) {
		t.Fatalf("2h window = %s..%s", from, to)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"band narrower than interval": func(c *Config) { c.RunInterval = 2 * time.Hour },
		"zero interval":               func(c *Config) { c.RunInterval = 0 },
		"half band too wide":          func(c *Config) { c.Urgent.HalfBand = 3 * time.Hour },
		"no timeout":                  func(c *Config) { c.SendTimeout = 0 },
		"no concurrency":              func(c *Config) { c.Concurrency = 0 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("2h"); err != nil || k != KindUrgent {
		t.Fatalf("ParseKind(2h) = %s, %v", k, err)
	}
	if _, err := ParseKind("1h"); err == nil {
		t.Fatalf("expected error for 1h")
	}
}
