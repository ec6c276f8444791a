package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qualitool/buildtools/internal/backendstub"
)

const (
	anonKey = "anon-key"
	userID  = "bb133f28-393e-4241-968f-8f9f0e3473a5"
)

func newStub(t *testing.T, opts backendstub.Options) (*backendstub.Server, *Client) {
	t.Helper()
	opts.APIKey = anonKey
	opts.Accounts = []backendstub.Account{{ID: userID, Email: "tester@example.com", Password: "secret"}}
	stub := backendstub.New(opts)
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, New(srv.URL+"/", anonKey, srv.Client())
}

type contactRow struct {
	UserID   string           `json:"user_id"`
	Contacts []map[string]any `json:"contacts"`
}

func TestSignInWithPassword(t *testing.T) {
	_, c := newStub(t, backendstub.Options{})
	s, err := c.SignInWithPassword(context.Background(), "tester@example.com", "secret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if s.User.ID != userID || s.AccessToken == "" || c.AccessToken != s.AccessToken {
		t.Fatalf("session=%+v token=%q", s, c.AccessToken)
	}
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	_, c := newStub(t, backendstub.Options{})
	_, err := c.SignInWithPassword(context.Background(), "tester@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "invalid_credentials" || apiErr.Message != "Invalid login credentials" {
		t.Fatalf("apiErr=%+v", apiErr)
	}
	if c.AccessToken != "" {
		t.Fatalf("failed sign-in must not set a token")
	}
}

func TestTableRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, c := newStub(t, backendstub.Options{})

	// The anon key can reach the table but sees no rows.
	var anon []contactRow
	if err := c.From("user_contacts").Select("user_id").Limit(1).Execute(ctx, &anon); err != nil {
		t.Fatalf("anon select: %v", err)
	}
	if len(anon) != 0 {
		t.Fatalf("anon rows=%d", len(anon))
	}

	if _, err := c.SignInWithPassword(ctx, "tester@example.com", "secret"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	var inserted []contactRow
	if err := c.From("user_contacts").Insert(ctx, map[string]any{"user_id": userID, "contacts": []any{}}, &inserted); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(inserted) != 1 || inserted[0].UserID != userID {
		t.Fatalf("inserted=%+v", inserted)
	}

	err := c.From("user_contacts").Insert(ctx, map[string]any{"user_id": userID}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "23505" {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	row := map[string]any{"user_id": userID, "contacts": []map[string]any{{"ort": "Teststadt"}}}
	var upserted []contactRow
	if err := c.From("user_contacts").Upsert(ctx, row, "user_id", &upserted); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(upserted) != 1 || len(upserted[0].Contacts) != 1 {
		t.Fatalf("upserted=%+v", upserted)
	}

	var got []contactRow
	if err := c.From("user_contacts").Select("contacts").Eq("user_id", userID).Execute(ctx, &got); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 1 || got[0].Contacts[0]["ort"] != "Teststadt" {
		t.Fatalf("got=%+v", got)
	}
	if got[0].UserID != "" {
		t.Fatalf("projection should drop user_id, got %q", got[0].UserID)
	}
}

func TestRPC(t *testing.T) {
	ctx := context.Background()
	stub, c := newStub(t, backendstub.Options{})
	params := map[string]any{"p_user_id": userID, "p_contacts": []map[string]any{{"id": "c1"}}}
	if err := c.RPC(ctx, "fn_public_upsert_user_contacts", params, nil); err != nil {
		t.Fatalf("rpc: %v", err)
	}
	if n := len(stub.Contacts(userID)); n != 1 {
		t.Fatalf("stored contacts=%d", n)
	}
}

func TestRPC_MissingFunction(t *testing.T) {
	_, c := newStub(t, backendstub.Options{DisableRPC: true})
	err := c.RPC(context.Background(), "fn_public_upsert_user_contacts", map[string]any{}, nil)
	if !IsMissingFunction(err) {
		t.Fatalf("expected missing-function error, got %v", err)
	}
}

func TestWrongAPIKey(t *testing.T) {
	_, c := newStub(t, backendstub.Options{})
	c.APIKey = "nope"
	err := c.From("user_contacts").Select("*").Execute(context.Background(), nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestNewAPIError_Shapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want APIError
	}{
		{"postgrest", `{"code":"PGRST202","message":"Could not find the function","details":"d","hint":"h"}`,
			APIError{Status: 404, Code: "PGRST202", Message: "Could not find the function", Details: "d", Hint: "h"}},
		{"auth", `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			APIError{Status: 404, Code: "invalid_credentials", Message: "Invalid login credentials"}},
		{"legacy auth", `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			APIError{Status: 404, Code: "invalid_grant", Message: "Invalid login credentials"}},
		{"plain text", "upstream timeout", APIError{Status: 404, Message: "upstream timeout"}},
		{"empty", "", APIError{Status: 404, Message: "Not Found"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := newAPIError(404, []byte(tc.body))
			if *got != tc.want {
				t.Fatalf("got %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func TestIsMissingFunction(t *testing.T) {
	if IsMissingFunction(errors.New("function does not exist")) {
		t.Fatalf("plain errors are not API errors")
	}
	if !IsMissingFunction(&APIError{Status: 404, Message: "function public.fn(p_user_id) does not exist"}) {
		t.Fatalf("expected message match")
	}
	if IsMissingFunction(&APIError{Status: 500, Code: "XX000", Message: "internal"}) {
		t.Fatalf("unexpected match")
	}
}
