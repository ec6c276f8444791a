package app

import (
	"os"
	"strings"
	"time"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file and before explicit flags.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	// Support both SUPABASE_ANON_KEY and SUPABASE_KEY; prefer the former.
	setString(&cfg.BackendURL, "SUPABASE_URL")
	setString(&cfg.APIKey, "SUPABASE_ANON_KEY", "SUPABASE_KEY")
	setString(&cfg.Email, "SMOKE_EMAIL")
	setString(&cfg.ExpectedUserID, "SMOKE_EXPECTED_USER_ID")
	setString(&cfg.Table, "SMOKE_TABLE")
	setString(&cfg.RPCFunction, "SMOKE_RPC_FUNCTION")
	// Passwords may legitimately have surrounding spaces.
	if v := os.Getenv("SMOKE_PASSWORD"); v != "" {
		cfg.Password = v
	}

	setDuration := func(dst *time.Duration, key string) {
		if s := strings.TrimSpace(os.Getenv(key)); s != "" {
			if d, err := time.ParseDuration(s); err == nil && d >= 0 {
				*dst = d
			}
		}
	}
	setDuration(&cfg.Wait, "SMOKE_WAIT")
	setDuration(&cfg.RequestTimeout, "SMOKE_TIMEOUT")

	// Booleans override when env present and truthy/falsey
	if s := strings.ToLower(strings.TrimSpace(os.Getenv("VERBOSE"))); s != "" {
		switch s {
		case "1", "true", "yes", "on":
			cfg.Verbose = true
		case "0", "false", "no", "off":
			cfg.Verbose = false
		}
	}
}
