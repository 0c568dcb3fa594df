package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Pricing.PricePerSeatCents != 10 {
		t.Errorf("price per seat = %d", cfg.Pricing.PricePerSeatCents)
	}
	if cfg.Pricing.Currency != "usd" {
		t.Errorf("currency = %q", cfg.Pricing.Currency)
	}
	if cfg.Reconcile.SweepIntervalSec != 60 {
		t.Errorf("sweep interval = %d", cfg.Reconcile.SweepIntervalSec)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("PRICE_PER_SEAT_CENTS", "25")
	t.Setenv("ELECTION_STORE_URL", "http://store.internal:9090")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Pricing.PricePerSeatCents != 25 {
		t.Errorf("price per seat = %d", cfg.Pricing.PricePerSeatCents)
	}
	if cfg.ElectionStore.BaseURL != "http://store.internal:9090" {
		t.Errorf("store url = %q", cfg.ElectionStore.BaseURL)
	}
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "safeballot", SSLMode: "disable"}
	want := "postgres://u:p@db:5432/safeballot?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}

	c.URL = "postgres://elsewhere/db"
	if got := c.DSN(); got != "postgres://elsewhere/db" {
		t.Errorf("url override ignored, got %q", got)
	}
}
