package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPortValidation(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8085")
	if err != nil || p != "8085" {
		t.Fatalf("expected fallback 8085, got %q err=%v", p, err)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_DUR_SECS", "15")
	t.Setenv("TEST_LIST", " a, ,b ,c")

	if got := Int("TEST_INT", 1); got != 42 {
		t.Fatalf("Int: got %d", got)
	}
	if got := Int("TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: got %d", got)
	}
	if !Bool("TEST_BOOL", false) {
		t.Fatalf("Bool: expected true")
	}
	if Bool("TEST_MISSING_BOOL", false) {
		t.Fatalf("Bool fallback: expected false")
	}
	if got := Duration("TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration: got %s", got)
	}
	if got := Duration("TEST_DUR_SECS", time.Second); got != 15*time.Second {
		t.Fatalf("Duration seconds: got %s", got)
	}
	list := List("TEST_LIST", "")
	if len(list) != 3 || list[0] != "a" || list[1] != "b" || list[2] != "c" {
		t.Fatalf("List: got %#v", list)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("BOOKPRO_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("BOOKPRO_DOTENV_VALUE", "")
	os.Unsetenv("BOOKPRO_DOTENV_VALUE")

	if err := LoadDotenv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := String("BOOKPRO_DOTENV_VALUE", ""); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
