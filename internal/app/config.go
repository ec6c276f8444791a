package app

import "time"

// Config holds runtime configuration for the contact-sync smoke check.
type Config struct {
	// Backend
	BackendURL string
	APIKey     string

	// Test account
	Email          string
	Password       string
	ExpectedUserID string

	// Data under test
	Table       string
	RPCFunction string

	// Test contact written during the sync step
	ContactStreet      string
	ContactHouseNumber string
	ContactCity        string
	ContactUnits       string
	ContactStatus      string

	// Behavior
	Wait           time.Duration
	RequestTimeout time.Duration
	Verbose        bool
}

// DefaultConfig returns the built-in defaults. Credentials have no default.
func DefaultConfig() Config {
	return Config{
		Table:              "user_contacts",
		RPCFunction:        "fn_public_upsert_user_contacts",
		ContactStreet:      "Sync Test Straße",
		ContactHouseNumber: "999",
		ContactCity:        "Teststadt",
		ContactUnits:       "5",
		ContactStatus:      "offen",
		Wait:               10 * time.Second,
		RequestTimeout:     30 * time.Second,
	}
}
