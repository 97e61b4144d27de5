package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_ORDER_API_URL": "http://orders.local",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.OrderAPI.BaseURL != "http://orders.local" {
		t.Errorf("unexpected order api url: %s", cfg.OrderAPI.BaseURL)
	}
	if cfg.Catalog.BaseURL != "http://orders.local" {
		t.Errorf("expected catalog url to default to order api url, got %s", cfg.Catalog.BaseURL)
	}
	if cfg.Notifier.BaseURL != "http://orders.local" {
		t.Errorf("expected notifier url to default to order api url, got %s", cfg.Notifier.BaseURL)
	}
	if cfg.Poller.Interval != 5*time.Second {
		t.Errorf("unexpected poll interval: %s", cfg.Poller.Interval)
	}
	if cfg.Poller.MaxWait != 30*time.Minute {
		t.Errorf("unexpected poll ceiling: %s", cfg.Poller.MaxWait)
	}
	if cfg.Store.Path != "storefront.db" {
		t.Errorf("unexpected store path: %s", cfg.Store.Path)
	}
	if cfg.Store.EphemeralTTL != 45*time.Minute {
		t.Errorf("unexpected ephemeral ttl: %s", cfg.Store.EphemeralTTL)
	}
	if cfg.Merchant.Currency != "PKR" {
		t.Errorf("unexpected default currency: %s", cfg.Merchant.Currency)
	}
}

func TestLoadRequiresOrderAPIURL(t *testing.T) {
	_, err := Load(WithEnvMap(nil), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected error when STOREFRONT_ORDER_API_URL is unset")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_PORT":            "9090",
		"STOREFRONT_ORDER_API_URL":   "http://orders.local",
		"STOREFRONT_CATALOG_API_URL": "http://catalog.local",
		"STOREFRONT_NOTIFIER_URL":    "http://notify.local",
		"STOREFRONT_POLL_INTERVAL":   "2s",
		"STOREFRONT_POLL_MAX_WAIT":   "10m",
		"STOREFRONT_STORE_PATH":      "/tmp/state.db",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Catalog.BaseURL != "http://catalog.local" {
		t.Errorf("unexpected catalog url: %s", cfg.Catalog.BaseURL)
	}
	if cfg.Notifier.BaseURL != "http://notify.local" {
		t.Errorf("unexpected notifier url: %s", cfg.Notifier.BaseURL)
	}
	if cfg.Poller.Interval != 2*time.Second {
		t.Errorf("unexpected poll interval: %s", cfg.Poller.Interval)
	}
	if cfg.Poller.MaxWait != 10*time.Minute {
		t.Errorf("unexpected poll ceiling: %s", cfg.Poller.MaxWait)
	}
	if cfg.Store.Path != "/tmp/state.db" {
		t.Errorf("unexpected store path: %s", cfg.Store.Path)
	}
}

func TestLoadRejectsInvalidPollInterval(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_ORDER_API_URL": "http://orders.local",
		"STOREFRONT_POLL_INTERVAL": "soon",
	}
	if _, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")); err == nil {
		t.Fatal("expected error for invalid poll interval")
	}

	env["STOREFRONT_POLL_INTERVAL"] = "-5s"
	if _, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")); err == nil {
		t.Fatal("expected error for negative poll interval")
	}
}

func TestLoadMergesMerchantProfile(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "merchant.yaml")
	profile := []byte("store_name: Snooze Bedding\ncurrency: pkr\ntransfer_account: \"0123456789\"\ntransfer_name: Snooze Ltd\n")
	if err := os.WriteFile(profilePath, profile, 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	env := map[string]string{
		"STOREFRONT_ORDER_API_URL":    "http://orders.local",
		"STOREFRONT_MERCHANT_PROFILE": profilePath,
	}
	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Merchant.StoreName != "Snooze Bedding" {
		t.Errorf("unexpected store name: %s", cfg.Merchant.StoreName)
	}
	if cfg.Merchant.Currency != "PKR" {
		t.Errorf("expected currency uppercased, got %s", cfg.Merchant.Currency)
	}
	if cfg.Merchant.TransferAccount != "0123456789" {
		t.Errorf("unexpected transfer account: %s", cfg.Merchant.TransferAccount)
	}
	if cfg.Merchant.PlaceholderImage != "/placeholder.png" {
		t.Errorf("expected placeholder default kept, got %s", cfg.Merchant.PlaceholderImage)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := []byte("# local overrides\nSTOREFRONT_ORDER_API_URL=http://orders.local\nSTOREFRONT_PORT=\"7070\"\n")
	if err := os.WriteFile(envPath, content, 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected quoted port stripped to 7070, got %s", cfg.Server.Port)
	}
	if cfg.OrderAPI.BaseURL != "http://orders.local" {
		t.Errorf("unexpected order api url: %s", cfg.OrderAPI.BaseURL)
	}
}
