package assistant

import (
	"fmt"
	"sync"
)

// recordingLogger captures formatted log entries for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.record("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.record("INFO", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.record("WARN", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.record("ERROR", msg, kv) }

func (l *recordingLogger) entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// recordingProgress captures progress reports for assertions.
type recordingProgress struct {
	mu      sync.Mutex
	reports []progressReport
}

type progressReport struct {
	fraction float64
	message  string
}

func (p *recordingProgress) Report(fraction float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, progressReport{fraction, message})
}

func (p *recordingProgress) all() []progressReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]progressReport(nil), p.reports...)
}
