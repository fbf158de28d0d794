package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Events writes gateway events with a fixed shape: provider, event type,
// bridge id, provider id and free-form details. Nothing it does can fail the
// caller; a panic inside the sink is swallowed.
type Events struct {
	z        *zap.Logger
	provider string
}

// For returns an event logger bound to a provider (or component) name.
// A nil base falls back to the global logger.
func For(provider string, base *zap.Logger) *Events {
	if base == nil {
		base = Log
	}
	return &Events{z: base, provider: provider}
}

// Nop discards everything. Handy in tests.
func Nop() *Events {
	return &Events{z: zap.NewNop()}
}

// Fields attaches correlation ids to an event.
type Fields struct {
	BridgeID   string
	ProviderID string
}

func (e *Events) Info(event string, ids Fields, details string) {
	e.write(zap.InfoLevel, event, ids, details)
}

func (e *Events) Warning(event string, ids Fields, details string) {
	e.write(zap.WarnLevel, event, ids, details)
}

func (e *Events) Error(event string, ids Fields, details string) {
	e.write(zap.ErrorLevel, event, ids, details)
}

// Critical is an error entry flagged critical=true.
func (e *Events) Critical(event string, ids Fields, details string) {
	e.write(zap.ErrorLevel, event, ids, details, zap.Bool("critical", true))
}

func (e *Events) write(lvl zapcore.Level, event string, ids Fields, details string, extra ...zap.Field) {
	if e == nil || e.z == nil {
		return
	}
	defer func() { _ = recover() }()

	ce := e.z.Check(lvl, details)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, 4+len(extra))
	fields = append(fields,
		zap.String("provider", e.provider),
		zap.String("event_type", event),
	)
	if ids.BridgeID != "" {
		fields = append(fields, zap.String("sms_bridge_id", ids.BridgeID))
	}
	if ids.ProviderID != "" {
		fields = append(fields, zap.String("provider_message_id", ids.ProviderID))
	}
	fields = append(fields, extra...)
	ce.Write(fields...)
}
