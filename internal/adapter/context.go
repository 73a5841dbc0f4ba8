package adapter

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Adapter names used in log entries
const (
	NameUser    = "user"
	NameWeb     = "webserver"
	NamePHPFPM  = "phpfpm"
	NameMySQL   = "mysql"
	NameDNS     = "dns"
	NameMail    = "mail"
	NameFTP     = "ftp"
	NameBackup  = "backup"
	NameDocRoot = "docroot"
)

// Operations recorded in log entries
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpSuspend = "suspend"
	OpResume  = "resume"
	OpDelete  = "delete"
)

// LogEntry is the wire format of the logging side-channel. It is persisted
// as a HostingLog row keyed by service id.
type LogEntry struct {
	Adapter      string         `json:"adapter"`
	Operation    string         `json:"operation"`
	TargetKind   string         `json:"targetKind"`
	TargetKey    string         `json:"targetKey"`
	Success      bool           `json:"success"`
	DryRun       bool           `json:"dryRun"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Sink receives log entries
type Sink interface {
	Log(ctx context.Context, entry LogEntry)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, entry LogEntry)

// Log implements Sink
func (f SinkFunc) Log(ctx context.Context, entry LogEntry) { f(ctx, entry) }

// Context is the per-operation value passed to every adapter call
type Context struct {
	DryRun    bool
	ServiceID string
	TraceID   string
	Sink      Sink
	Logger    *logrus.Entry
}

// Log records an entry. DryRun is stamped from the context so adapters
// cannot forget it.
func (c *Context) Log(ctx context.Context, entry LogEntry) {
	if c == nil {
		return
	}
	entry.DryRun = c.DryRun
	if c.Sink != nil {
		c.Sink.Log(ctx, entry)
	}
}

// Entry returns a logger carrying the context identifiers
func (c *Context) Entry() *logrus.Entry {
	logger := c.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return logger.WithFields(logrus.Fields{
		"serviceId": c.ServiceID,
		"traceId":   c.TraceID,
		"dryRun":    c.DryRun,
	})
}

// Would records a dry-run intention and reports whether the caller must
// skip the mutation.
func (c *Context) Would(ctx context.Context, entry LogEntry) bool {
	if c == nil || !c.DryRun {
		return false
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	entry.Details["action"] = "would_apply"
	entry.Success = true
	c.Log(ctx, entry)
	return true
}
