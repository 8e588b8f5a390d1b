package log

import (
	"go.uber.org/zap"
)

// ZapAdapter writes protocol events to a zap.Logger at Debug level.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a ZapAdapter. The logger is named "protocol".
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger.Named("protocol")}
}

// Log writes the event to the zap logger.
func (a *ZapAdapter) Log(event Event) {
	if ce := a.logger.Check(zap.DebugLevel, event.Category.String()); ce != nil {
		ce.Write(zapFields(event)...)
	}
}

func zapFields(event Event) []zap.Field {
	fields := []zap.Field{
		zap.Time("ts_event", event.Timestamp),
		zap.String("conn_id", event.ConnectionID),
		zap.Stringer("direction", event.Direction),
		zap.Stringer("layer", event.Layer),
	}
	if event.RemoteAddr != "" {
		fields = append(fields, zap.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Frame != nil:
		fields = append(fields, zap.Int("size", event.Frame.Size))
		if event.Frame.QueueEmpty != nil {
			fields = append(fields, zap.Bool("queue_empty", *event.Frame.QueueEmpty))
		}
	case event.Request != nil:
		fields = append(fields,
			zap.String("request", event.Request.Type),
			zap.String("topic", event.Request.Topic),
			zap.String("qos", event.Request.QOS),
			zap.Uint32("ttl", event.Request.TTL),
		)
		if event.Request.Credit != nil {
			fields = append(fields, zap.Uint32("credit", *event.Request.Credit))
		}
	case event.StateChange != nil:
		fields = append(fields,
			zap.Stringer("entity", event.StateChange.Entity),
			zap.String("old_state", event.StateChange.OldState),
			zap.String("new_state", event.StateChange.NewState),
			zap.String("reason", event.StateChange.Reason),
		)
	case event.Timer != nil:
		fields = append(fields,
			zap.Duration("delay", event.Timer.Delay),
			zap.String("outcome", event.Timer.Outcome),
		)
	case event.Error != nil:
		fields = append(fields,
			zap.Stringer("error_layer", event.Error.Layer),
			zap.String("error_kind", event.Error.Kind),
			zap.String("error_msg", event.Error.Message),
			zap.String("error_context", event.Error.Context),
		)
	}
	return fields
}

var _ Logger = (*ZapAdapter)(nil)
