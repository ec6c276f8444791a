// Command backend-stub serves an in-memory backend that syncsmoke can run
// against locally.
package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qualitool/buildtools/internal/backendstub"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	addr := envOr("ADDR", ":8082")
	opts := backendstub.Options{
		APIKey: envOr("STUB_API_KEY", "anon-key"),
		Accounts: []backendstub.Account{{
			ID:       envOr("STUB_USER_ID", uuid.NewString()),
			Email:    envOr("STUB_EMAIL", "tester@example.com"),
			Password: envOr("STUB_PASSWORD", "TestPassword123!"),
		}},
		DisableRPC: isTrue(os.Getenv("STUB_DISABLE_RPC")),
	}
	if isTrue(os.Getenv("VERBOSE")) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("addr", addr).
		Str("user_id", opts.Accounts[0].ID).
		Str("email", opts.Accounts[0].Email).
		Bool("rpc_disabled", opts.DisableRPC).
		Msg("backend-stub listening")
	srv := &http.Server{
		Addr:              addr,
		Handler:           backendstub.New(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
