package goBlog

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goBlog/internal/audit"
)

// AuditEvent is one navigation or session audit record.
type AuditEvent = audit.Event

// AuditType names what an AuditEvent records.
type AuditType = audit.Type

const (
	AuditNavigation          = audit.TypeNavigation
	AuditSessionChange       = audit.TypeSessionChange
	AuditSessionInitialError = audit.TypeSessionInitialError
)

// AuditSink receives audit events from the App's dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	LoggerSink     = audit.LoggerSink
)

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewLoggerSink(logger *slog.Logger) *LoggerSink { return audit.NewLoggerSink(logger) }
