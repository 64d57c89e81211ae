package ems

import "github.com/rs/zerolog"

// Logger is the syslog-like message sink the core consumes. The original
// driver called syslog.openlog/syslog.syslog once per message under
// identity "EMS"; Logger generalizes that to a structured key/value sink so
// any of the pack's logging backends can be plugged in.
type Logger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// zerologSink adapts a zerolog.Logger to Logger, tagging every record with
// subsystem=ems the way the Python driver tagged every syslog line with its
// "EMS" identity and a fixed name ("bus") prefix.
type zerologSink struct {
	log zerolog.Logger
}

// NewZerologSink wraps l, adding a subsystem=ems field to every record.
func NewZerologSink(l zerolog.Logger) Logger {
	return &zerologSink{log: l.With().Str("subsystem", "ems").Logger()}
}

func (s *zerologSink) Info(msg string, kv ...any)  { s.event(s.log.Info(), msg, kv) }
func (s *zerologSink) Warn(msg string, kv ...any)  { s.event(s.log.Warn(), msg, kv) }
func (s *zerologSink) Error(msg string, kv ...any) { s.event(s.log.Error(), msg, kv) }

func (s *zerologSink) event(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

// nopLogger discards everything; used when a Config omits a Logger.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
