package clinic

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestStoreGetCacheHit(t *testing.T) {
	cache := newTestRedis(t)
	cfg := &Config{ClinicID: "clinic-1", Name: "Maple Grove Vet", Timezone: "America/Chicago"}
	data, _ := json.Marshal(cfg)
	if err := cache.Set(context.Background(), "clinic:config:clinic-1", data, 0).Err(); err != nil {
		t.Fatal(err)
	}

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newStoreWithQuerier(mock, cache, nil)
	got, err := store.Get(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "Maple Grove Vet" {
		t.Errorf("unexpected name: %s", got.Name)
	}
	// No database query should have run.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected db access: %v", err)
	}
}

func TestStoreGetCacheMissFillsCache(t *testing.T) {
	cache := newTestRedis(t)

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	override := 4
	rows := pgxmock.NewRows([]string{
		"id", "name", "phone", "timezone", "integration_type", "capacity_override",
		"pms_username", "pms_password", "pms_site_id",
		"notify_email_enabled", "notify_email_recipients",
	}).AddRow(
		"clinic-2", "Cedar Creek Animal Hospital", "+15550001111", "America/Denver",
		"realtime_pms", &override, "api-user", "secret", "site-9",
		true, []string{"frontdesk@cedarcreek.vet"},
	)
	mock.ExpectQuery("SELECT id, name, phone").WithArgs("clinic-2").WillReturnRows(rows)

	store := newStoreWithQuerier(mock, cache, nil)
	got, err := store.Get(context.Background(), "clinic-2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.EffectiveIntegration() != IntegrationRealtimePMS {
		t.Errorf("unexpected integration: %s", got.Integration)
	}
	if got.CapacityOverride == nil || *got.CapacityOverride != 4 {
		t.Errorf("unexpected capacity override: %v", got.CapacityOverride)
	}

	// Second read must come from the cache.
	again, err := store.Get(context.Background(), "clinic-2")
	if err != nil {
		t.Fatalf("cached get failed: %v", err)
	}
	if again.Name != got.Name {
		t.Errorf("cache returned different config: %s", again.Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, phone").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	store := newStoreWithQuerier(mock, nil, nil)
	if _, err := store.Get(context.Background(), "missing"); err != ErrClinicNotFound {
		t.Fatalf("expected ErrClinicNotFound, got %v", err)
	}
}

func TestLookupByNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id"}).AddRow("clinic-3")
	mock.ExpectQuery("SELECT id FROM clinics").WithArgs("+15551234567").WillReturnRows(rows)

	store := newStoreWithQuerier(mock, nil, nil)
	id, err := store.LookupByNumber(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if id != "clinic-3" {
		t.Errorf("unexpected id: %s", id)
	}
}

func TestEffectiveIntegrationDefaults(t *testing.T) {
	tests := []struct {
		in   IntegrationType
		want IntegrationType
	}{
		{"", IntegrationStoreManaged},
		{"store_managed", IntegrationStoreManaged},
		{"realtime_pms", IntegrationRealtimePMS},
		{"no_api", IntegrationNoAPI},
		{"something_else", IntegrationStoreManaged},
	}
	for _, tt := range tests {
		cfg := &Config{Integration: tt.in}
		if got := cfg.EffectiveIntegration(); got != tt.want {
			t.Errorf("EffectiveIntegration(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := &Config{Timezone: "Not/AZone"}
	if cfg.Location().String() != "America/New_York" {
		t.Errorf("expected Eastern fallback, got %s", cfg.Location())
	}
	cfg = &Config{Timezone: "America/Los_Angeles"}
	if cfg.Location().String() != "America/Los_Angeles" {
		t.Errorf("expected configured zone, got %s", cfg.Location())
	}
}
