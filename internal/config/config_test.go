package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadSettlementFlags(t *testing.T) {
	t.Setenv("SETTLEMENT_REJECT_UNDERPAID", "")
	t.Setenv("SETTLEMENT_REQUIRE_SESSION", "")

	cfg := Load()
	if cfg.SettlementRejectUnderpaid {
		t.Fatal("expected SettlementRejectUnderpaid to default to false")
	}
	if cfg.SettlementRequireSession {
		t.Fatal("expected SettlementRequireSession to default to false")
	}

	t.Setenv("SETTLEMENT_REJECT_UNDERPAID", "true")
	t.Setenv("SETTLEMENT_REQUIRE_SESSION", "1")

	cfg = Load()
	if !cfg.SettlementRejectUnderpaid {
		t.Fatal("expected SettlementRejectUnderpaid=true")
	}
	if !cfg.SettlementRequireSession {
		t.Fatal("expected SettlementRequireSession=true")
	}

	t.Setenv("SETTLEMENT_REJECT_UNDERPAID", "not-a-bool")
	cfg = Load()
	if cfg.SettlementRejectUnderpaid {
		t.Fatal("expected malformed flag to fall back to default")
	}
}

func TestLoadSummaryTTLFallback(t *testing.T) {
	t.Setenv("SUMMARY_TTL_SECONDS", "0")
	cfg := Load()
	if cfg.SummaryTTLSeconds != 30 {
		t.Fatalf("expected fallback TTL 30, got %d", cfg.SummaryTTLSeconds)
	}
}
