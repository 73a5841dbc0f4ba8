package provisioning

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/model"
)

// LogStore persists adapter log rows
type LogStore interface {
	AppendHostingLog(ctx context.Context, entry *model.HostingLog) error
}

// ServiceLogger persists every adapter log entry as a HostingLog row for
// one service and mirrors it to logrus
type ServiceLogger struct {
	store     LogStore
	serviceID int
	traceID   string
	logger    *logrus.Entry
}

// NewServiceLogger creates a sink bound to one service
func NewServiceLogger(store LogStore, serviceID int, traceID string, logger *logrus.Entry) *ServiceLogger {
	return &ServiceLogger{store: store, serviceID: serviceID, traceID: traceID, logger: logger}
}

// Log implements adapter.Sink
func (l *ServiceLogger) Log(ctx context.Context, entry adapter.LogEntry) {
	fields := logrus.Fields{
		"serviceId":  l.serviceID,
		"traceId":    l.traceID,
		"adapter":    entry.Adapter,
		"operation":  entry.Operation,
		"targetKind": entry.TargetKind,
		"targetKey":  entry.TargetKey,
		"success":    entry.Success,
		"dryRun":     entry.DryRun,
	}
	for k, v := range entry.Details {
		fields["detail."+k] = v
	}
	if entry.Success {
		l.logger.WithFields(fields).Info("adapter operation")
	} else {
		l.logger.WithFields(fields).WithField("error", entry.ErrorMessage).Warn("adapter operation failed")
	}

	row := &model.HostingLog{
		ServiceID:    l.serviceID,
		TraceID:      l.traceID,
		Adapter:      entry.Adapter,
		Operation:    entry.Operation,
		TargetKind:   entry.TargetKind,
		TargetKey:    entry.TargetKey,
		Success:      entry.Success,
		DryRun:       entry.DryRun,
		ErrorMessage: entry.ErrorMessage,
	}
	if len(entry.Details) > 0 {
		if data, err := json.Marshal(entry.Details); err == nil {
			row.Details = data
		}
	}
	if err := l.store.AppendHostingLog(ctx, row); err != nil {
		l.logger.WithError(err).Error("failed to persist hosting log")
	}
}
