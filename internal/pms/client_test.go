package pms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, nil), srv
}

func authHandler(t *testing.T, next http.HandlerFunc) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/sessions" && r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"token": "tok-123", "expiresIn": 900})
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("missing bearer token, got %q", got)
		}
		next(w, r)
	}
}

func TestAuthenticateAndSearch(t *testing.T) {
	client, _ := newTestServer(t, authHandler(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/patients/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Limit != 5 {
			t.Errorf("expected default limit 5, got %d", req.Limit)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"patients": []Patient{
				{ID: "p1", ClientID: "c1", Name: "Biscuit", Species: "dog", OwnerName: "Jane Doe"},
			},
		})
	}))

	session, err := client.Authenticate(context.Background(), Credentials{Username: "u", Password: "p", SiteID: "s"})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	defer session.Close()

	patients, err := session.SearchPatients(context.Background(), "biscuit", 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(patients) != 1 || patients[0].ID != "p1" {
		t.Fatalf("unexpected patients: %+v", patients)
	}
}

func TestAuthenticateEmptyToken(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": ""})
	})
	_, err := client.Authenticate(context.Background(), Credentials{})
	if err == nil || !strings.Contains(err.Error(), "empty session token") {
		t.Fatalf("expected empty token error, got %v", err)
	}
}

func TestCreateAppointment(t *testing.T) {
	client, _ := newTestServer(t, authHandler(t, func(w http.ResponseWriter, r *http.Request) {
		var params AppointmentParams
		json.NewDecoder(r.Body).Decode(&params)
		if params.Date != "2026-06-15" || params.StartTime != "10:00:00" {
			t.Errorf("unexpected params: %+v", params)
		}
		json.NewEncoder(w).Encode(CreateResult{Success: true, AppointmentID: "ext-42"})
	}))

	session, err := client.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	defer session.Close()

	result, err := session.CreateAppointment(context.Background(), AppointmentParams{
		PatientID: "p1",
		Date:      "2026-06-15",
		StartTime: "10:00:00",
		EndTime:   "10:30:00",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !result.Success || result.AppointmentID != "ext-42" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateAppointmentServerError(t *testing.T) {
	client, _ := newTestServer(t, authHandler(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slot taken", http.StatusConflict)
	}))

	session, err := client.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	defer session.Close()

	_, err = session.CreateAppointment(context.Background(), AppointmentParams{})
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected 409 error, got %v", err)
	}
}

func TestDryRunSkipsServer(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/sessions" {
			json.NewEncoder(w).Encode(map[string]any{"token": "tok-123"})
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		hits++
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, nil, WithDryRun(true))
	session, err := client.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	defer session.Close()

	result, err := session.CreateAppointment(context.Background(), AppointmentParams{Date: "2026-06-15"})
	if err != nil {
		t.Fatalf("dry run create failed: %v", err)
	}
	if !result.Success || result.Message != "DRY_RUN" {
		t.Fatalf("unexpected dry run result: %+v", result)
	}
	if err := session.CancelAppointment(context.Background(), "ext-1", "test"); err != nil {
		t.Fatalf("dry run cancel failed: %v", err)
	}
	if hits != 0 {
		t.Errorf("dry run must not hit mutating endpoints, got %d hits", hits)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	deletes := 0
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/sessions" && r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"token": "tok-123"})
			return
		}
		if r.Method == http.MethodDelete {
			deletes++
			w.WriteHeader(http.StatusNoContent)
		}
	})

	session, err := client.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if deletes != 1 {
		t.Errorf("expected exactly one session delete, got %d", deletes)
	}
}
