package app

import (
	"testing"
	"time"
)

func TestEnvHelpersDefaults(t *testing.T) {
	if got := EnvString("CM_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("EnvString default: %q", got)
	}
	if got := EnvBool("CM_TEST_UNSET", true); !got {
		t.Fatalf("EnvBool default: %v", got)
	}
	if got := EnvInt("CM_TEST_UNSET", 7); got != 7 {
		t.Fatalf("EnvInt default: %d", got)
	}
	if got := EnvDuration("CM_TEST_UNSET", time.Minute); got != time.Minute {
		t.Fatalf("EnvDuration default: %v", got)
	}
}

func TestEnvHelpersParse(t *testing.T) {
	t.Setenv("CM_TEST_STR", "  value  ")
	if got := EnvString("CM_TEST_STR", "x"); got != "value" {
		t.Fatalf("EnvString trim: %q", got)
	}

	t.Setenv("CM_TEST_BOOL", "true")
	if !EnvBool("CM_TEST_BOOL", false) {
		t.Fatalf("EnvBool parse failed")
	}
	t.Setenv("CM_TEST_BOOL", "nope")
	if EnvBool("CM_TEST_BOOL", false) {
		t.Fatalf("invalid bool must fall back")
	}

	t.Setenv("CM_TEST_INT", "42")
	if got := EnvInt("CM_TEST_INT", 1); got != 42 {
		t.Fatalf("EnvInt parse: %d", got)
	}
	t.Setenv("CM_TEST_INT", "-5")
	if got := EnvInt("CM_TEST_INT", 1); got != 1 {
		t.Fatalf("non-positive int must fall back: %d", got)
	}

	t.Setenv("CM_TEST_DUR", "250ms")
	if got := EnvDuration("CM_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("EnvDuration parse: %v", got)
	}
}

func TestEnvCSV(t *testing.T) {
	t.Setenv("CM_TEST_CSV", " a , , b ,c ")
	got := EnvCSV("CM_TEST_CSV", "")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("EnvCSV: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EnvCSV[%d]=%q want %q", i, got[i], want[i])
		}
	}

	if got := EnvCSV("CM_TEST_CSV_UNSET", "x,y"); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("EnvCSV default: %v", got)
	}
	if got := EnvCSV("CM_TEST_CSV_UNSET", ""); got != nil {
		t.Fatalf("empty default must yield nil, got %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr default: %q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "chunkmeet" {
		t.Fatalf("DBSchema default: %q", cfg.DBSchema)
	}
	if cfg.CallReadyAttempts != 3 || cfg.CallReadyInterval != time.Second {
		t.Fatalf("call probe defaults: %d %v", cfg.CallReadyAttempts, cfg.CallReadyInterval)
	}
	if !cfg.WSOriginRequired {
		t.Fatalf("origin should be required by default")
	}
}
