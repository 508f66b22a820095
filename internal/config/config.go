package config

import (
	"os"
	"strconv"
	"time"
)

// Settings collects every tunable the matching core reads from the
// environment. Zero-valued limits mean "unlimited" where noted.
type Settings struct {
	// MatchWindow is the half-width of the departure-time window used
	// by match search: candidates depart within ±MatchWindow.
	MatchWindow time.Duration
	// MaxMatches truncates the ranked match list.
	MaxMatches int
	// ExpiryBuffer is added to the earlier departure time of a pair to
	// produce the conversation's expiresAt.
	ExpiryBuffer time.Duration
	// MessageCap bounds the per-conversation message list.
	MessageCap int
	// MaxMessageLen bounds a single message's text.
	MaxMessageLen int
	// DailyRideQuota bounds ride creations per owner per day.
	DailyRideQuota int
	// MaxActivePairings bounds simultaneous non-declined pairings per
	// ride at initiate time. 0 means unlimited.
	MaxActivePairings int
	// SlotGranularity is the departure-time alignment step.
	SlotGranularity time.Duration
	// MaxAdvance is how far in the future a departure may be.
	MaxAdvance time.Duration
}

// Load reads settings from the environment, falling back to defaults.
func Load() Settings {
	return Settings{
		MatchWindow:       envDuration("MATCH_WINDOW", 45*time.Minute),
		MaxMatches:        envInt("MAX_MATCHES", 20),
		ExpiryBuffer:      envDuration("EXPIRY_BUFFER", 2*time.Hour),
		MessageCap:        envInt("MESSAGE_CAP", 100),
		MaxMessageLen:     envInt("MAX_MESSAGE_LEN", 500),
		DailyRideQuota:    envInt("DAILY_RIDE_QUOTA", 10),
		MaxActivePairings: envInt("MAX_ACTIVE_PAIRINGS", 0),
		SlotGranularity:   envDuration("SLOT_GRANULARITY", 5*time.Minute),
		MaxAdvance:        envDuration("MAX_ADVANCE", 7*24*time.Hour),
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
