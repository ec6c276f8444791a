// Package smoke runs the contact-sync checklist against a live backend: it
// signs in a test account, makes sure the account has a contacts row, syncs a
// freshly generated contact and reads it back.
package smoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qualitool/buildtools/internal/supabase"
)

// ErrStopped is returned when a failed check leaves nothing to test after it.
var ErrStopped = errors.New("smoke run stopped")

// Contact is one entry of the contacts list stored per user. The JSON keys are
// the backend's column names.
type Contact struct {
	ID          string `json:"id,omitempty"`
	Street      string `json:"strasse"`
	HouseNumber string `json:"hausnummer"`
	City        string `json:"ort"`
	Units       string `json:"we"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Config describes the account and data under test.
type Config struct {
	Table          string
	RPCFunction    string
	Email          string
	Password       string
	ExpectedUserID string
	// Contact is the template for the contact added during the sync step.
	Contact Contact
	// Wait is the pause between syncing and reading the contact back.
	Wait time.Duration
}

// Summary is the tally of recorded checks.
type Summary struct {
	Run    int
	Passed int
	// Method is how the contact was synced: "RPC", "Table Upsert" or "".
	Method string
}

// OK reports whether at least one check ran and all of them passed.
func (s Summary) OK() bool { return s.Run > 0 && s.Passed == s.Run }

// Tester runs the checklist. Zero-valued hooks fall back to real
// implementations.
type Tester struct {
	Client *supabase.Client
	Config Config
	Out    io.Writer
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error

	runID   string
	summary Summary
}

type row struct {
	UserID   string            `json:"user_id"`
	Contacts []json.RawMessage `json:"contacts"`
}

// Run executes every check in order and returns the tally. A failed gating
// check (connection, authentication, table access, sync) ends the run early
// with an error wrapping ErrStopped.
func (t *Tester) Run(ctx context.Context) (Summary, error) {
	t.summary = Summary{}
	t.runID = uuid.NewString()
	logger := log.With().Str("run", t.runID).Logger()
	logger.Info().Str("backend", t.Client.BaseURL).Msg("starting contact sync smoke run")
	t.printf("Starting contact synchronization smoke test\n")
	t.printf("============================================================\n")

	if !t.checkConnection(ctx) {
		return t.stop("backend connection")
	}
	userID, ok := t.authenticate(ctx)
	if !ok {
		return t.stop("user authentication")
	}
	existing, ok := t.loadContacts(ctx, userID)
	if !ok {
		return t.stop("table access")
	}
	t.checkRPCAvailability(ctx, userID, existing)

	contact, ok := t.syncContact(ctx, userID, existing)
	if !ok {
		return t.stop("contact sync")
	}
	t.verifyContact(ctx, userID, contact)

	t.printf("\n============================================================\n")
	t.printf("Test results: %d/%d tests passed\n", t.summary.Passed, t.summary.Run)
	if t.summary.OK() {
		t.printf("ALL TESTS PASSED - contact synchronization is working\n")
	} else {
		t.printf("SOME TESTS FAILED - contact synchronization has issues\n")
	}
	logger.Info().Int("checks", t.summary.Run).Int("passed", t.summary.Passed).Str("method", t.summary.Method).Msg("smoke run finished")
	return t.summary, nil
}

func (t *Tester) stop(step string) (Summary, error) {
	t.printf("Cannot proceed after failed %s\n", step)
	log.Warn().Str("run", t.runID).Str("step", step).Msg("smoke run stopped")
	return t.summary, fmt.Errorf("%w: %s failed", ErrStopped, step)
}

// record tallies one check and reports it.
func (t *Tester) record(name string, passed bool, detail string) {
	t.summary.Run++
	mark := "FAIL"
	if passed {
		t.summary.Passed++
		mark = "PASS"
	}
	t.printf("[%s] %s\n", mark, name)
	if detail != "" {
		t.printf("   %s\n", detail)
	}
	ev := log.Debug()
	if !passed {
		ev = log.Warn()
	}
	ev.Str("run", t.runID).Str("check", name).Bool("passed", passed).Str("detail", detail).Msg("smoke check")
}

func (t *Tester) checkConnection(ctx context.Context) bool {
	var rows []row
	err := t.Client.From(t.Config.Table).Select("user_id").Limit(1).Execute(ctx, &rows)
	if err != nil {
		t.record("Backend Connection", false, fmt.Sprintf("Connection failed: %v", err))
		return false
	}
	t.record("Backend Connection", true, fmt.Sprintf("Connected successfully, can access %s table", t.Config.Table))
	return true
}

func (t *Tester) authenticate(ctx context.Context) (string, bool) {
	s, err := t.Client.SignInWithPassword(ctx, t.Config.Email, t.Config.Password)
	if err != nil {
		t.record("User Authentication", false, fmt.Sprintf("Authentication error: %v", err))
		return "", false
	}
	if s.User.ID == "" {
		t.record("User Authentication", false, "Authentication failed - no user returned")
		return "", false
	}
	want := t.Config.ExpectedUserID
	if want != "" && s.User.ID != want {
		t.record("User Authentication", false, fmt.Sprintf("User ID mismatch. Expected: %s, Got: %s", want, s.User.ID))
		return s.User.ID, false
	}
	t.record("User Authentication", true, fmt.Sprintf("Authenticated %s, user id %s", t.Config.Email, s.User.ID))
	return s.User.ID, true
}

// loadContacts returns the user's stored contacts, creating an empty row when
// the user has none yet.
func (t *Tester) loadContacts(ctx context.Context, userID string) ([]json.RawMessage, bool) {
	var rows []row
	if err := t.Client.From(t.Config.Table).Select("*").Eq("user_id", userID).Execute(ctx, &rows); err != nil {
		t.record("User Contacts Table Access", false, fmt.Sprintf("Table access error: %v", err))
		return nil, false
	}
	if len(rows) > 0 {
		existing := rows[0].Contacts
		t.record("User Contacts Table Access", true, fmt.Sprintf("Found %s row for user %s, existing contacts: %d", t.Config.Table, userID, len(existing)))
		return existing, true
	}

	var created []row
	err := t.Client.From(t.Config.Table).Insert(ctx, map[string]any{"user_id": userID, "contacts": []any{}}, &created)
	if err != nil {
		t.record("User Contacts Table Access", false, fmt.Sprintf("Could not create %s row: %v", t.Config.Table, err))
		return nil, false
	}
	if len(created) == 0 {
		t.record("User Contacts Table Access", false, fmt.Sprintf("Could not access or create %s row", t.Config.Table))
		return nil, false
	}
	t.record("User Contacts Table Access", true, fmt.Sprintf("Created new %s row for user %s", t.Config.Table, userID))
	return nil, true
}

// checkRPCAvailability calls the sync function with the contacts already
// stored, so the probe does not change the user's data.
func (t *Tester) checkRPCAvailability(ctx context.Context, userID string, existing []json.RawMessage) {
	err := t.Client.RPC(ctx, t.Config.RPCFunction, rpcParams(userID, existing), nil)
	name := "RPC Function Availability"
	switch {
	case err == nil:
		t.record(name, true, fmt.Sprintf("%s is available and callable", t.Config.RPCFunction))
	case supabase.IsMissingFunction(err):
		t.record(name, false, fmt.Sprintf("RPC function %s does not exist: %v", t.Config.RPCFunction, err))
	default:
		t.record(name, false, fmt.Sprintf("RPC function error (may still exist): %v", err))
	}
}

// syncContact appends a uniquely named test contact and syncs the list, first
// through the RPC function and then through a table upsert.
func (t *Tester) syncContact(ctx context.Context, userID string, existing []json.RawMessage) (Contact, bool) {
	now := t.now()
	c := t.Config.Contact
	c.ID = fmt.Sprintf("sync_test_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
	c.CreatedAt = now.Format(time.RFC3339)

	raw, err := json.Marshal(c)
	if err != nil {
		t.record("Contact Sync", false, fmt.Sprintf("Encode contact: %v", err))
		return c, false
	}
	updated := append(append([]json.RawMessage{}, existing...), raw)

	t.printf("Simulating contact sync for user %s\n", userID)
	t.printf("   Adding contact: %s %s, %s\n", c.Street, c.HouseNumber, c.City)

	rpcErr := t.Client.RPC(ctx, t.Config.RPCFunction, rpcParams(userID, updated), nil)
	if rpcErr == nil {
		t.summary.Method = "RPC"
		t.record("Contact Sync via RPC", true, fmt.Sprintf("Synced %d contacts via RPC", len(updated)))
		return c, true
	}
	t.printf("   RPC method failed: %v\n", rpcErr)

	upsertErr := t.Client.From(t.Config.Table).Upsert(ctx, map[string]any{"user_id": userID, "contacts": updated}, "user_id", nil)
	if upsertErr != nil {
		t.record("Contact Sync", false, fmt.Sprintf("Both RPC and table upsert failed. RPC: %v, Upsert: %v", rpcErr, upsertErr))
		return c, false
	}
	t.summary.Method = "Table Upsert"
	t.record("Contact Sync via Table Upsert", true, fmt.Sprintf("Synced %d contacts via table upsert", len(updated)))
	return c, true
}

// verifyContact waits for the configured delay and looks for c by street,
// house number and city.
func (t *Tester) verifyContact(ctx context.Context, userID string, c Contact) {
	name := "Contact Verification"
	if t.Config.Wait > 0 {
		t.printf("Waiting %s for sync to complete...\n", t.Config.Wait)
		if err := t.sleep(ctx, t.Config.Wait); err != nil {
			t.record(name, false, fmt.Sprintf("Wait interrupted: %v", err))
			return
		}
	}

	var rows []struct {
		Contacts []map[string]any `json:"contacts"`
	}
	if err := t.Client.From(t.Config.Table).Select("contacts").Eq("user_id", userID).Execute(ctx, &rows); err != nil {
		t.record(name, false, fmt.Sprintf("Verification error: %v", err))
		return
	}
	if len(rows) == 0 {
		t.record(name, false, "No contacts found in database")
		return
	}
	synced := rows[0].Contacts
	for _, got := range synced {
		if got["strasse"] == c.Street && got["hausnummer"] == c.HouseNumber && got["ort"] == c.City {
			t.record(name, true, fmt.Sprintf("Test contact found in database, total contacts: %d", len(synced)))
			return
		}
	}
	t.record(name, false, fmt.Sprintf("Test contact NOT found in database, total contacts: %d", len(synced)))
	t.printf("   Looking for: %s %s, %s\n", c.Street, c.HouseNumber, c.City)
	sample := make([]string, 0, 3)
	for i, got := range synced {
		if i == 3 {
			break
		}
		sample = append(sample, fmt.Sprintf("%v %v, %v", orNA(got["strasse"]), orNA(got["hausnummer"]), orNA(got["ort"])))
	}
	t.printf("   Found contacts: %q\n", sample)
}

func rpcParams(userID string, contacts []json.RawMessage) map[string]any {
	if contacts == nil {
		contacts = []json.RawMessage{}
	}
	return map[string]any{"p_user_id": userID, "p_contacts": contacts}
}

func orNA(v any) any {
	if v == nil {
		return "N/A"
	}
	return v
}

func (t *Tester) printf(format string, args ...any) {
	out := t.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}

func (t *Tester) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tester) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
