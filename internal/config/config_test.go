package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Escrow.FeeBps != 500 {
		t.Fatalf("default fee = %d, want 500", cfg.Escrow.FeeBps)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("parse generated config: %v", err)
	}
	if cfg.Escrow.FeeRecipient != "platform-treasury" {
		t.Fatalf("recipient = %s", cfg.Escrow.FeeRecipient)
	}
}

func TestValidateRejectsFeeAboveCap(t *testing.T) {
	cfg := Default()
	cfg.Escrow.FeeBps = FeeCapBps + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("fee above cap accepted")
	}
	cfg.Escrow.FeeBps = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative fee accepted")
	}
}

func TestValidateRequiresIdentities(t *testing.T) {
	cfg := Default()
	cfg.Escrow.FeeRecipient = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty recipient accepted")
	}
	cfg = Default()
	cfg.Escrow.Admin = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty admin accepted")
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load empty workspace: %v", err)
	}
	if cfg.Escrow.FeeBps != 500 {
		t.Fatalf("fee = %d, want default 500", cfg.Escrow.FeeBps)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	dir := t.TempDir()
	yml := `escrow:
  fee_bps: 250
  fee_recipient: other-treasury
  admin: root
webhooks:
  - url: http://127.0.0.1:9999/hook
    events: [task.funded]
`
	if err := os.WriteFile(filepath.Join(dir, "flowescrow.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Escrow.FeeBps != 250 || cfg.Escrow.FeeRecipient != "other-treasury" {
		t.Fatalf("escrow = %+v", cfg.Escrow)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL == "" {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestWebhookURLRequired(t *testing.T) {
	cfg := Default()
	cfg.Webhooks = []WebhookConfig{{Secret: "s"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("webhook without url accepted")
	}
}
