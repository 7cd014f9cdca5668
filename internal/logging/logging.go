// Package logging builds the zerolog loggers used by both binaries.
//
// Every run writes JSON lines to <dir>/<prefix>_<YYYYMMDD>.log and echoes to the
// console.  Devices get an extra file, <prefix>_device<N>_<YYYYMMDD>.log, that sees
// only that device's lines while the run file keeps the full trace.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	// Level is trace, debug, info, warn or error.  Default: info.
	Level string

	// Format of the console stream: console or json.  Files are always JSON.
	Format string

	// Directory for log files.  Empty disables file output.
	Directory string

	// Prefix of the file names, e.g. "collector" or "reconciler".
	Prefix string

	// Console receives the human stream.  Default: os.Stdout.
	Console io.Writer

	// Now stamps file names.  Default: time.Now.
	Now func() time.Time
}

type RunLog struct {
	logger  zerolog.Logger
	cfg     Config
	file    *os.File
	console io.Writer
}

func New(cfg Config) (*RunLog, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "bioledger"
	}

	zerolog.TimeFieldFormat = time.RFC3339

	console := cfg.Console
	if strings.ToLower(cfg.Format) != "json" {
		console = zerolog.ConsoleWriter{Out: cfg.Console, TimeFormat: "15:04:05", NoColor: true}
	}

	rl := &RunLog{cfg: cfg, console: console}
	out := console
	if cfg.Directory != "" {
		f, err := openFile(cfg.Directory, cfg.Prefix, cfg.Now())
		if err != nil {
			return nil, err
		}
		rl.file = f
		out = zerolog.MultiLevelWriter(console, f)
	}

	rl.logger = zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return rl, nil
}

func (r *RunLog) Logger() zerolog.Logger { return r.logger }

// Path returns the run log file, or "" when file output is disabled.
func (r *RunLog) Path() string {
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

// Device returns a logger tagged with the device number that also writes to the
// device's own file.  The returned func closes that file.
func (r *RunLog) Device(number int) (zerolog.Logger, func()) {
	base := r.logger.With().Int("device", number).Logger()
	if r.cfg.Directory == "" {
		return base, func() {}
	}

	f, err := openFile(r.cfg.Directory, fmt.Sprintf("%s_device%d", r.cfg.Prefix, number), r.cfg.Now())
	if err != nil {
		base.Warn().Err(err).Msg("device log file unavailable, using run log only")
		return base, func() {}
	}

	w := zerolog.MultiLevelWriter(r.console, r.file, f)
	l := zerolog.New(w).Level(r.logger.GetLevel()).With().Timestamp().Int("device", number).Logger()
	return l, func() { _ = f.Close() }
}

func (r *RunLog) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

func openFile(dir, prefix string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_%s.log", prefix, now.Format("20060102")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	}
	return zerolog.InfoLevel
}

// Nop returns a RunLog that discards everything.
func Nop() *RunLog {
	return &RunLog{logger: zerolog.Nop(), console: io.Discard}
}
