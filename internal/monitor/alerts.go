package monitor

import (
	"log/slog"
	"sync"
	"time"
)

type AlertLevel string

const (
	AlertLevelP1 AlertLevel = "P1"
	AlertLevelP2 AlertLevel = "P2"
)

const (
	AlertDataTestOverlap = "data_test_overlap"
	AlertHighVariation   = "aggregator_high_variation"
	AlertErrorThreshold  = "interpolation_error_threshold"
)

// Alert is keyed by Name and Subject, the pair or source it concerns. A
// condition that keeps recurring for the same subject bumps Count on the
// open alert instead of opening a new one.
type Alert struct {
	Level    AlertLevel
	Name     string
	Subject  string
	Message  string
	Count    int
	FiredAt  time.Time
	LastSeen time.Time
	AckedAt  *time.Time
}

type AlertManager struct {
	mu       sync.RWMutex
	alerts   []Alert
	channels []string
	logger   *slog.Logger
	now      func() time.Time
}

func NewAlertManager(channels []string, logger *slog.Logger) *AlertManager {
	return &AlertManager{
		channels: channels,
		logger:   logger,
		now:      time.Now,
	}
}

// Fire opens an alert, or records a repeat of the open one with the same
// name and subject. Only newly opened alerts are dispatched.
func (am *AlertManager) Fire(level AlertLevel, name, subject, message string) {
	now := am.now()

	am.mu.Lock()
	for i := range am.alerts {
		a := &am.alerts[i]
		if a.Name == name && a.Subject == subject && a.AckedAt == nil {
			a.Count++
			a.LastSeen = now
			a.Message = message
			count := a.Count
			am.mu.Unlock()
			am.logger.Warn("alert repeated", "name", name, "subject", subject, "count", count)
			return
		}
	}
	alert := Alert{
		Level:    level,
		Name:     name,
		Subject:  subject,
		Message:  message,
		Count:    1,
		FiredAt:  now,
		LastSeen: now,
	}
	am.alerts = append(am.alerts, alert)
	am.mu.Unlock()

	am.logger.Error("alert fired",
		"level", string(level),
		"name", name,
		"subject", subject,
		"message", message,
	)
	for _, ch := range am.channels {
		am.logger.Info("alert dispatched", "channel", ch, "level", string(level), "name", name, "subject", subject)
	}
}

func (am *AlertManager) ActiveAlerts() []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	var active []Alert
	for _, a := range am.alerts {
		if a.AckedAt == nil {
			active = append(active, a)
		}
	}
	return active
}

// Acknowledge closes the open alert for name and subject; an empty subject
// closes every open alert with that name. A later Fire opens a new one.
func (am *AlertManager) Acknowledge(name, subject string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	for i := range am.alerts {
		a := &am.alerts[i]
		if a.Name == name && a.AckedAt == nil && (subject == "" || a.Subject == subject) {
			a.AckedAt = &now
		}
	}
}
