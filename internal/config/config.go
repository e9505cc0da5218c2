// Package config provides centralized configuration management.
// This is the single source of truth for simulation and server tuning.
//
// When changing values, only modify this file; all other parts of the
// codebase reference these values.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// SIMULATION
// =============================================================================

// SimConfig holds the authoritative simulation settings shared by the server
// tick loop and the client-side fixed physics step.
type SimConfig struct {
	TickHz      int     // Authoritative tick rate
	PositionHz  int     // Client position stream rate (bandwidth bound)
	Gravity     float64 // Downward acceleration, units/s^2
	MaxFrameSec float64 // Cap on a single frame's elapsed time (stall guard)
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickHz:      30,
		PositionHz:  20,
		Gravity:     24.0,
		MaxFrameSec: 0.25,
	}
}

// SimFromEnv returns simulation configuration with environment overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if hz := getEnvInt("SIM_TICK_HZ", 0); hz > 0 {
		cfg.TickHz = hz
	}
	if hz := getEnvInt("POSITION_HZ", 0); hz > 0 {
		cfg.PositionHz = hz
	}
	if g := getEnvFloat("SIM_GRAVITY", 0); g > 0 {
		cfg.Gravity = g
	}
	return cfg
}

// =============================================================================
// SERVER
// =============================================================================

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Port          int
	MaxConns      int // Hard cap on total live connections
	MaxConnsPerIP int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:          3000,
		MaxConns:      64,
		MaxConnsPerIP: 4,
	}
}

// ServerFromEnv returns server configuration with environment overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if mc := getEnvInt("MAX_CONNS", 0); mc > 0 {
		cfg.MaxConns = mc
	}
	if mc := getEnvInt("MAX_CONNS_PER_IP", 0); mc > 0 {
		cfg.MaxConnsPerIP = mc
	}
	return cfg
}

// =============================================================================
// MATCH LIFECYCLE
// =============================================================================

// MatchConfig holds race-start and voting timings.
type MatchConfig struct {
	StartCooldown time.Duration // Duplicate race-start suppression window
	VoteTimeout   time.Duration // Forces "menu" if no unanimous decision
	TargetRespawn time.Duration // Shared target downtime after depletion
}

// DefaultMatch returns the default match configuration.
func DefaultMatch() MatchConfig {
	return MatchConfig{
		StartCooldown: 3 * time.Second,
		VoteTimeout:   30 * time.Second,
		TargetRespawn: 5 * time.Second,
	}
}

// MatchFromEnv returns match configuration with environment overrides.
func MatchFromEnv() MatchConfig {
	cfg := DefaultMatch()

	if d := getEnvDuration("VOTE_TIMEOUT", 0); d > 0 {
		cfg.VoteTimeout = d
	}
	if d := getEnvDuration("START_COOLDOWN", 0); d > 0 {
		cfg.StartCooldown = d
	}
	if d := getEnvDuration("TARGET_RESPAWN", 0); d > 0 {
		cfg.TargetRespawn = d
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim    SimConfig
	Server ServerConfig
	Match  MatchConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Sim:    SimFromEnv(),
		Server: ServerFromEnv(),
		Match:  MatchFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
