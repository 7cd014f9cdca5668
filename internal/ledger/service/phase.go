package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

var ErrReconcilerFailed = errors.New("reconciler failed")

// ReconcilePhase reconciles pending raw logs and then, when deleteAllMode is set,
// clears the DeleteAll flag.  On failure the flag is left as it was.
type ReconcilePhase interface {
	Reconcile(ctx context.Context, deleteAllMode bool) error
}

// InProcessPhase reconciles on store connections opened for the phase.
type InProcessPhase struct {
	opener     StoreOpener
	reconciler *Reconciler
	log        zerolog.Logger
}

func NewInProcessPhase(opener StoreOpener, r *Reconciler, log zerolog.Logger) *InProcessPhase {
	return &InProcessPhase{opener: opener, reconciler: r, log: log}
}

func (p *InProcessPhase) Reconcile(ctx context.Context, deleteAllMode bool) (err error) {
	ctx = p.log.WithContext(ctx)

	st, err := p.opener.OpenStores(ctx)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			p.log.Warn().Err(cerr).Msg("close stores after reconciliation")
		}
	}()

	if _, err := p.reconciler.Reconcile(ctx, st); err != nil {
		return err
	}

	if deleteAllMode {
		if err := ClearDeleteAllMode(ctx, st); err != nil {
			return err
		}
		p.log.Info().Msg("DeleteAll mode cleared")
	}
	return nil
}

// IsolatedPhase runs the reconciler binary as a child process so it starts with
// fresh store connections.  Every line the child prints is forwarded into the
// parent log; any non-zero exit fails the phase.
type IsolatedPhase struct {
	Binary       string
	LogDirectory string
	ConfigPath   string   // passed as --config when set
	Env          []string // appended to the parent environment
	Log          zerolog.Logger
}

func (p *IsolatedPhase) Reconcile(ctx context.Context, deleteAllMode bool) error {
	logDir, err := filepath.Abs(p.LogDirectory)
	if err != nil {
		return fmt.Errorf("resolve log directory: %w", err)
	}

	args := []string{
		"--deleteAllMode=" + strconv.FormatBool(deleteAllMode),
		"--logDirectory=" + logDir,
	}
	if p.ConfigPath != "" {
		args = append(args, "--config="+p.ConfigPath)
	}

	cmd := exec.CommandContext(ctx, p.Binary, args...)
	cmd.Env = append(os.Environ(), p.Env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("reconciler stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("reconciler stderr: %w", err)
	}

	p.Log.Info().Str("binary", p.Binary).Strs("args", args).Msg("starting reconciler process")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start: %w", ErrReconcilerFailed, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go forwardLines(&wg, stdout, p.Log, zerolog.InfoLevel, "stdout")
	go forwardLines(&wg, stderr, p.Log, zerolog.WarnLevel, "stderr")
	// Pipes must be drained before Wait closes them.
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			p.Log.Error().Int("exit_code", ee.ExitCode()).Msg("reconciler process failed")
			return fmt.Errorf("%w: exit code %d", ErrReconcilerFailed, ee.ExitCode())
		}
		return fmt.Errorf("%w: %w", ErrReconcilerFailed, err)
	}
	p.Log.Info().Msg("reconciler process finished")
	return nil
}

// forwardLines logs every line of r at level, tagged with the child's stream.
func forwardLines(wg *sync.WaitGroup, r io.Reader, log zerolog.Logger, level zerolog.Level, stream string) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		log.WithLevel(level).Str("stream", stream).Msg(sc.Text())
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Str("stream", stream).Msg("reconciler output truncated")
		_, _ = io.Copy(io.Discard, r)
	}
}
