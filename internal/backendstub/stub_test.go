package backendstub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func do(t *testing.T, s *Server, method, target, token, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("apikey", "anon")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_RejectsMissingAPIKey(t *testing.T) {
	s := New(Options{APIKey: "anon"})
	req := httptest.NewRequest(http.MethodGet, "/rest/v1/user_contacts", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestServer_UnknownTable(t *testing.T) {
	s := New(Options{APIKey: "anon"})
	rec := do(t, s, http.MethodGet, "/rest/v1/contacts", "", "", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"42P01"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestServer_RowLevelSecurity(t *testing.T) {
	s := New(Options{APIKey: "anon", Accounts: []Account{{ID: "u1", Email: "a@example.com", Password: "pw"}}})
	rec := do(t, s, http.MethodPost, "/rest/v1/user_contacts", "", `{"user_id":"u1","contacts":[]}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anon insert status=%d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/rest/v1/user_contacts", "bogus", `{"user_id":"u1"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token status=%d", rec.Code)
	}
}

func TestServer_SelectFiltersAndLimit(t *testing.T) {
	s := New(Options{APIKey: "anon"})
	rec := do(t, s, http.MethodGet, "/rest/v1/user_contacts?user_id=gt.5", "", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported filter status=%d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/rest/v1/user_contacts?limit=-1", "", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/rest/v1/user_contacts?select=user_id&limit=1", "", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestServer_RPCStoresContacts(t *testing.T) {
	s := New(Options{APIKey: "anon"})
	rec := do(t, s, http.MethodPost, "/rest/v1/rpc/fn_public_upsert_user_contacts", "", `{"p_user_id":"u1","p_contacts":[{"id":"c1"}]}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := s.Contacts("u1"); len(got) != 1 {
		t.Fatalf("contacts=%v", got)
	}
	if s.Calls("POST /rest/v1/rpc/fn_public_upsert_user_contacts") != 1 {
		t.Fatalf("call count not recorded")
	}
	rec = do(t, s, http.MethodPost, "/rest/v1/rpc/fn_public_upsert_user_contacts", "", `{"p_contacts":[]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user status=%d", rec.Code)
	}
}

func TestServer_UpsertOnConflict(t *testing.T) {
	s := New(Options{APIKey: "anon"})
	rec := do(t, s, http.MethodPost, "/rest/v1/user_contacts?on_conflict=email", "", `{}`, map[string]string{"Prefer": "resolution=merge-duplicates"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestParseColumns(t *testing.T) {
	if parseColumns("*") != nil || parseColumns("") != nil {
		t.Fatalf("wildcard should select all columns")
	}
	got := parseColumns(" user_id , contacts,")
	if len(got) != 2 || got[0] != "user_id" || got[1] != "contacts" {
		t.Fatalf("got %q", got)
	}
}
