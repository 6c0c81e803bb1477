// Package tpxlog provides single-line, timestamped logging: every
// connect/disconnect, every mode decision, and every error prints one
// line carrying a timestamp, a kind, and a mode.
package tpxlog

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Kind tags the category of event being logged.
type Kind string

const (
	KindConnect    Kind = "connect"
	KindDisconnect Kind = "disconnect"
	KindMode       Kind = "mode"
	KindError      Kind = "error"
	KindSync       Kind = "sync"
)

// Logger wraps a charmbracelet/log.Logger, pinning "kind" and "mode" as
// structured fields so every emitted line carries them alongside the
// library's own timestamp.
type Logger struct {
	base *log.Logger
}

// New constructs a Logger writing to w (e.g. os.Stdout or a daily log file
// opened via OpenDaily).
func New(w io.Writer) *Logger {
	base := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return &Logger{base: base}
}

// OpenDaily opens (creating if necessary) a log file under dir named by
// the strftime pattern "tpx3stream-%Y%m%d.log" — one file per calendar
// day, with no further rotation policy.
func OpenDaily(dir string) (io.WriteCloser, error) {
	pattern, err := strftime.New("tpx3stream-%Y%m%d.log")
	if err != nil {
		return nil, err
	}
	name := pattern.FormatString(time.Now())
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Event logs one line: kind, mode, and a free-form message, alongside the
// underlying logger's own timestamp.
func (l *Logger) Event(kind Kind, mode string, msg string, keyvals ...any) {
	fields := append([]any{"kind", string(kind), "mode", mode}, keyvals...)
	if kind == KindError {
		l.base.Error(msg, fields...)
		return
	}
	l.base.Info(msg, fields...)
}

// Connect logs a client or detector connection event.
func (l *Logger) Connect(mode, remoteAddr string) {
	l.Event(KindConnect, mode, "connection established", "remote", remoteAddr)
}

// Disconnect logs a client or detector disconnection event.
func (l *Logger) Disconnect(mode, remoteAddr string, err error) {
	if err != nil {
		l.Event(KindDisconnect, mode, "connection closed", "remote", remoteAddr, "err", err)
		return
	}
	l.Event(KindDisconnect, mode, "connection closed", "remote", remoteAddr)
}

// Error logs a fatal or aggregated error with its kind label.
func (l *Logger) Error(mode string, errKind string, err error) {
	l.Event(KindError, mode, "error", "errKind", errKind, "err", err)
}
