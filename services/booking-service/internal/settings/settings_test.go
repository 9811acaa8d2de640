package settings

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SlotGranularity != 15*time.Minute || s.MinLead != 30*time.Minute || s.MaxDuration != 8*time.Hour || s.AvailabilityCacheTTL != time.Minute {
		t.Fatalf("unexpected defaults %+v", s)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("APPTBOOK_SLOT_GRANULARITY", "30m")
	t.Setenv("BOOKING_MIN_LEAD", "0s")
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SlotGranularity != 30*time.Minute || s.MinLead != 0 {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"APPTBOOK_SLOT_GRANULARITY":       "90s",
		"APPTBOOK_BOOKING_MIN_LEAD":       "-5m",
		"APPTBOOK_BOOKING_MAX_DURATION":   "soon",
		"APPTBOOK_AVAILABILITY_CACHE_TTL": "1h",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, val)
			}
		})
	}
}
