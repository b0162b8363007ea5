package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// LoadConfig loads rate limiting configuration from environment variables.
// perMinute is the per-client default when RATE_LIMIT_DEFAULT_LIMIT is unset.
func LoadConfig(perMinute int) *Config {
	enabled := getEnvBool("RATE_LIMIT_ENABLED", true)
	if !enabled {
		return &Config{
			Enabled: false,
		}
	}

	if perMinute <= 0 {
		perMinute = 1000
	}
	defaultLimit := getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", perMinute)
	defaultWindow := getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute)
	cleanupInterval := getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)

	whitelist := parseIPList(getEnvString("RATE_LIMIT_WHITELIST", ""))
	blacklist := parseIPList(getEnvString("RATE_LIMIT_BLACKLIST", ""))

	return &Config{
		Enabled:         enabled,
		DefaultLimit:    defaultLimit,
		DefaultWindow:   defaultWindow,
		CleanupInterval: cleanupInterval,
		Whitelist:       whitelist,
		Blacklist:       blacklist,
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
// A path ending in "/" covers every route below it.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// POST /trials/{trial_id}/extract calls the text-understanding service
		{Path: "/trials/", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},

		// POST /patients/{patient_id}/trials/{trial_id}/match may extract once, then explains
		{Path: "/patients/", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},

		// GET /patients/{patient_id}/trials/{trial_id}/match uses the default limit
	}
}

// unlimitedEndpoints are never rate limited whatever the configuration
var unlimitedEndpoints = []EndpointConfig{
	{Path: "/health", Method: "GET"},
	{Path: "/metrics", Method: "GET"},
}

// MatchEndpoint returns the configuration governing method and path, or nil
// when the default limit applies. An exact path wins over a prefix.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	for _, u := range unlimitedEndpoints {
		if u.Method == method && u.Path == path {
			return &EndpointConfig{Path: u.Path, Method: u.Method}
		}
	}

	var prefix *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if prefix == nil && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			prefix = c
		}
	}
	return prefix
}

// getEnvString gets an environment variable as a string with a default value.
func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	if list == "" {
		return result
	}

	ips := strings.Split(list, ",")
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}

	return result
}

