// Package backendstub serves an in-memory stand-in for the hosted backend:
// password sign-in, one contacts table with row-level visibility, and the
// contact upsert RPC. It lets the smoke check run without network access.
package backendstub

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Account is a user that can sign in with a password.
type Account struct {
	ID       string
	Email    string
	Password string
}

// Options configures a Server.
type Options struct {
	APIKey      string
	Accounts    []Account
	Table       string
	RPCFunction string
	// DisableRPC makes the RPC endpoint answer as if the function did not
	// exist, forcing clients onto the table upsert path.
	DisableRPC bool
}

// Server is an http.Handler holding all state in memory.
type Server struct {
	opts Options
	mux  *http.ServeMux

	mu     sync.Mutex
	tokens map[string]string         // access token -> user id
	rows   map[string]map[string]any // user id -> row
	calls  map[string]int
}

// New returns a server with an empty contacts table.
func New(opts Options) *Server {
	if opts.Table == "" {
		opts.Table = "user_contacts"
	}
	if opts.RPCFunction == "" {
		opts.RPCFunction = "fn_public_upsert_user_contacts"
	}
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		tokens: map[string]string{},
		rows:   map[string]map[string]any{},
		calls:  map[string]int{},
	}
	s.mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	s.mux.HandleFunc("POST /rest/v1/rpc/{fn}", s.handleRPC)
	s.mux.HandleFunc("GET /rest/v1/{table}", s.handleSelect)
	s.mux.HandleFunc("POST /rest/v1/{table}", s.handleInsert)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != s.opts.APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
		return
	}
	s.count(r.Method + " " + r.URL.Path)
	log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("stub request")
	s.mux.ServeHTTP(w, r)
}

// Contacts returns a copy of the contact list stored for userID.
func (s *Server) Contacts(userID string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[userID]
	if !ok {
		return nil
	}
	list, _ := row["contacts"].([]any)
	return append([]any(nil), list...)
}

// Calls returns how many requests hit "METHOD /path".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) count(route string) {
	s.mu.Lock()
	s.calls[route]++
	s.mu.Unlock()
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "password" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "error_code": "validation_failed", "msg": "unsupported grant_type"})
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r.Body, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "error_code": "bad_json", "msg": err.Error()})
		return
	}
	for _, a := range s.opts.Accounts {
		if strings.EqualFold(a.Email, body.Email) && a.Password == body.Password {
			token := uuid.NewString()
			s.mu.Lock()
			s.tokens[token] = a.ID
			s.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  token,
				"token_type":    "bearer",
				"expires_in":    3600,
				"refresh_token": uuid.NewString(),
				"user":          map[string]any{"id": a.ID, "email": a.Email},
			})
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
}

// caller resolves the bearer token. It returns the user id ("" for the anon
// key) and false when the token is unknown.
func (s *Server) caller(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == s.opts.APIKey {
		return "", true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok
}

func (s *Server) checkTable(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := s.caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "PGRST301", "message": "JWT could not be decoded"})
		return "", false
	}
	if table := r.PathValue("table"); table != s.opts.Table {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": "42P01", "message": `relation "public.` + table + `" does not exist`})
		return "", false
	}
	return user, true
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	user, ok := s.checkTable(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit := -1
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": "PGRST102", "message": "invalid limit"})
			return
		}
		limit = n
	}
	filters := map[string]string{}
	for k, vs := range q {
		if k == "select" || k == "limit" || k == "order" {
			continue
		}
		for _, v := range vs {
			val, found := strings.CutPrefix(v, "eq.")
			if !found {
				writeJSON(w, http.StatusBadRequest, map[string]any{"code": "PGRST100", "message": "unsupported filter " + v})
				return
			}
			filters[k] = val
		}
	}
	columns := parseColumns(q.Get("select"))

	s.mu.Lock()
	out := []map[string]any{}
	for id, row := range s.rows {
		// Row-level security: a signed-in user sees only their own row and
		// the anon key sees nothing.
		if user == "" || id != user {
			continue
		}
		if !matches(row, filters) {
			continue
		}
		out = append(out, project(row, columns))
		if limit >= 0 && len(out) >= limit {
			break
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	user, ok := s.checkTable(w, r)
	if !ok {
		return
	}
	rows, err := decodeRows(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "PGRST102", "message": err.Error()})
		return
	}
	prefer := r.Header.Get("Prefer")
	merge := strings.Contains(prefer, "resolution=merge-duplicates")
	if merge {
		if c := r.URL.Query().Get("on_conflict"); c != "" && c != "user_id" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": "42P10", "message": "there is no unique or exclusion constraint matching the ON CONFLICT specification"})
			return
		}
	}

	s.mu.Lock()
	written := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		id, _ := row["user_id"].(string)
		if user == "" || id != user {
			s.mu.Unlock()
			writeJSON(w, http.StatusForbidden, map[string]any{"code": "42501", "message": `new row violates row-level security policy for table "` + s.opts.Table + `"`})
			return
		}
		existing, exists := s.rows[id]
		if exists && !merge {
			s.mu.Unlock()
			writeJSON(w, http.StatusConflict, map[string]any{"code": "23505", "message": `duplicate key value violates unique constraint "` + s.opts.Table + `_pkey"`, "details": "Key (user_id)=(" + id + ") already exists."})
			return
		}
		if !exists {
			existing = map[string]any{"user_id": id, "contacts": []any{}}
		}
		for k, v := range row {
			existing[k] = v
		}
		existing["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
		s.rows[id] = existing
		written = append(written, copyRow(existing))
	}
	s.mu.Unlock()

	if strings.Contains(prefer, "return=representation") {
		writeJSON(w, http.StatusCreated, written)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	fn := r.PathValue("fn")
	if s.opts.DisableRPC || fn != s.opts.RPCFunction {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"code":    "PGRST202",
			"message": "Could not find the function public." + fn + " in the schema cache",
			"hint":    nil,
		})
		return
	}
	if _, ok := s.caller(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "PGRST301", "message": "JWT could not be decoded"})
		return
	}
	var params struct {
		UserID   string `json:"p_user_id"`
		Contacts []any  `json:"p_contacts"`
	}
	if err := decode(r.Body, &params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "PGRST102", "message": err.Error()})
		return
	}
	if params.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "22004", "message": "p_user_id must not be null"})
		return
	}
	if params.Contacts == nil {
		params.Contacts = []any{}
	}
	s.mu.Lock()
	s.rows[params.UserID] = map[string]any{
		"user_id":    params.UserID,
		"contacts":   params.Contacts,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func decode(r io.Reader, dst any) error {
	return json.NewDecoder(io.LimitReader(r, 4<<20)).Decode(dst)
}

// decodeRows accepts a single JSON object or an array of objects.
func decodeRows(r io.Reader) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := decode(r, &raw); err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return []map[string]any{row}, nil
}

func parseColumns(sel string) []string {
	sel = strings.TrimSpace(sel)
	if sel == "" || sel == "*" {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(sel, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func matches(row map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		got, ok := row[k]
		if !ok {
			return false
		}
		s, ok := got.(string)
		if !ok || s != want {
			return false
		}
	}
	return true
}

func project(row map[string]any, cols []string) map[string]any {
	if cols == nil {
		return copyRow(row)
	}
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
