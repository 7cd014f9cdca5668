package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
)

// TestMain lets the test binary stand in for the reconciler executable.
func TestMain(m *testing.M) {
	if os.Getenv("BIOLEDGER_FAKE_RECONCILER") == "1" {
		fakeReconciler()
		return
	}
	os.Exit(m.Run())
}

// fakeReconciler echoes its arguments and exits with BIOLEDGER_FAKE_EXIT.
func fakeReconciler() {
	fmt.Println("fake reconciler args:", strings.Join(os.Args[1:], " "))
	fmt.Fprintln(os.Stderr, "fake reconciler warning line")
	code := 0
	fmt.Sscanf(os.Getenv("BIOLEDGER_FAKE_EXIT"), "%d", &code)
	os.Exit(code)
}

// ═══════════════════════════════════════════════════════════════════════════
// IsolatedPhase
// ═══════════════════════════════════════════════════════════════════════════

func TestIsolatedPhase_PassesFlagsAndForwardsOutput(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	p := &service.IsolatedPhase{
		Binary:       os.Args[0],
		LogDirectory: dir,
		ConfigPath:   "/etc/bioledger/bioledger.yaml",
		Env:          []string{"BIOLEDGER_FAKE_RECONCILER=1", "BIOLEDGER_FAKE_EXIT=0"},
		Log:          zerolog.New(&buf),
	}

	if err := p.Reconcile(context.Background(), true); err != nil {
		t.Fatalf("Reconcile: %v\n%s", err, buf.String())
	}

	out := buf.String()
	for _, want := range []string{
		"--deleteAllMode=true",
		"--logDirectory=" + dir,
		"--config=/etc/bioledger/bioledger.yaml",
		"fake reconciler warning line",
		`"stream":"stderr"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("parent log missing %q:\n%s", want, out)
		}
	}
}

func TestIsolatedPhase_NonZeroExitFailsThePhase(t *testing.T) {
	p := &service.IsolatedPhase{
		Binary:       os.Args[0],
		LogDirectory: t.TempDir(),
		Env:          []string{"BIOLEDGER_FAKE_RECONCILER=1", "BIOLEDGER_FAKE_EXIT=1"},
		Log:          zerolog.Nop(),
	}

	err := p.Reconcile(context.Background(), false)
	if !errors.Is(err, service.ErrReconcilerFailed) {
		t.Fatalf("expected ErrReconcilerFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "exit code 1") {
		t.Errorf("error should carry the exit code: %v", err)
	}
}

func TestIsolatedPhase_MissingBinary(t *testing.T) {
	p := &service.IsolatedPhase{
		Binary:       "/nonexistent/bioledger-reconciler",
		LogDirectory: t.TempDir(),
		Log:          zerolog.Nop(),
	}
	if err := p.Reconcile(context.Background(), false); !errors.Is(err, service.ErrReconcilerFailed) {
		t.Fatalf("expected ErrReconcilerFailed, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// InProcessPhase
// ═══════════════════════════════════════════════════════════════════════════

func TestInProcessPhase_OpenFailureLeavesFlag(t *testing.T) {
	m := newMemStores()
	_ = m.legacy.PutSetting(context.Background(), "DeleteAll", "1")
	m.failOpens(errors.New("primary store unreachable"))
	p := service.NewInProcessPhase(m, newReconciler(), zerolog.Nop())

	if err := p.Reconcile(context.Background(), true); err == nil {
		t.Fatal("expected open failure")
	}
	if v, _, _ := m.legacy.GetSetting(context.Background(), "DeleteAll"); v != "1" {
		t.Errorf("DeleteAll = %q, want 1", v)
	}
}

func TestInProcessPhase_LeavesFlagAloneWhenNotRequested(t *testing.T) {
	m := newMemStores()
	p := service.NewInProcessPhase(m, newReconciler(), zerolog.Nop())

	if err := p.Reconcile(context.Background(), false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n := m.legacy.Calls("PutSetting"); n != 0 {
		t.Errorf("PutSetting called %d times", n)
	}
	if opens, closes := m.counts(); opens != 1 || closes != 1 {
		t.Errorf("opens/closes = %d/%d, want 1/1", opens, closes)
	}
}
