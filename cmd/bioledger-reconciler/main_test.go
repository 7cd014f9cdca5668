package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BrandonDHaskell/bioledger/internal/db"
)

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--help"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if !strings.Contains(stderr.String(), "-logDirectory") {
		t.Errorf("usage missing flags:\n%s", stderr.String())
	}
}

func TestRun_InvalidArgs(t *testing.T) {
	logDir := t.TempDir()
	cases := map[string][]string{
		"unknown flag":        {"--bogus"},
		"missing logDir":      {"--deleteAllMode=true"},
		"nonexistent logDir":  {"--logDirectory=" + filepath.Join(logDir, "nope")},
		"positional argument": {"--logDirectory=" + logDir, "extra"},
		"missing config":      {"--logDirectory=" + logDir, "--config=" + filepath.Join(logDir, "missing.yaml")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(args, &stdout, &stderr); code != 1 {
				t.Fatalf("exit = %d, want 1 (stderr: %s)", code, stderr.String())
			}
		})
	}
}

func TestRun_ReconcilesAndClearsDeleteAll(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	ctx := context.Background()

	legacy := openStore(t, db.KindLegacy, filepath.Join(dir, "legacy.duckdb"))
	if err := db.SeedDev(ctx, legacy, db.SeedDevOptions{Employees: map[int]string{42: "E042"}}); err != nil {
		t.Fatalf("SeedDev: %v", err)
	}
	mustExec(t, legacy, `UPDATE settings SET setting_value = '1' WHERE setting_name = 'DeleteAll'`)
	_ = legacy.Close()

	primary := openStore(t, db.KindPrimary, filepath.Join(dir, "primary.db"))
	mustExec(t, primary, `
INSERT INTO raw_logs(logical_device, physical_device, enrollment_number, verify_mode,
  ev_year, ev_month, ev_day, ev_hour, ev_minute, ev_second, direction)
VALUES (1, 1, 42, 1, 2024, 3, 1, 8, 59, 0, 'I')`)
	_ = primary.Close()

	logDir := filepath.Join(dir, "logs")
	if err := os.Mkdir(logDir, 0o755); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"--deleteAllMode=true", "--logDirectory=" + logDir, "--config=" + cfgPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}

	primary = openStore(t, db.KindPrimary, filepath.Join(dir, "primary.db"))
	defer primary.Close()
	var code42 string
	if err := primary.QueryRowContext(ctx, `SELECT employee_code FROM attendance`).Scan(&code42); err != nil {
		t.Fatalf("read attendance: %v", err)
	}
	if code42 != "E042" {
		t.Errorf("employee_code = %q, want E042", code42)
	}

	legacy = openStore(t, db.KindLegacy, filepath.Join(dir, "legacy.duckdb"))
	defer legacy.Close()
	var v string
	if err := legacy.QueryRowContext(ctx, `SELECT setting_value FROM settings WHERE setting_name = 'DeleteAll'`).Scan(&v); err != nil {
		t.Fatalf("read DeleteAll: %v", err)
	}
	if v != "0" {
		t.Errorf("DeleteAll = %q, want 0", v)
	}

	entries, _ := filepath.Glob(filepath.Join(logDir, "reconciler_*.log"))
	if len(entries) != 1 {
		t.Errorf("expected one reconciler log file, got %v", entries)
	}
}

// ── Test helpers ──────────────────────────────────────────────────────────────

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}
	devices := write("devices.yaml", "devices:\n  - {number: 1, address: 10.0.0.11, port: 4370, direction: IN}\n")
	fixture := write("fixture.yaml", "devices: []\n")
	return write("bioledger.yaml", `
log:
  format: json
legacy:
  path: `+filepath.Join(dir, "legacy.duckdb")+`
primary:
  path: `+filepath.Join(dir, "primary.db")+`
devices:
  file: `+devices+`
  fixture: `+fixture+`
`)
}

func openStore(t *testing.T, kind db.Kind, path string) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{Kind: kind, Path: path})
	if err != nil {
		t.Fatalf("open %s: %v", kind, err)
	}
	return conn
}

func mustExec(t *testing.T, conn *sql.DB, query string) {
	t.Helper()
	if _, err := conn.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("exec: %v", err)
	}
}
