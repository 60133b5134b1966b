package model

import (
	"time"

	"github.com/google/uuid"
)

type ServiceStatus string

const (
	ServiceStatusRunning     ServiceStatus = "RUNNING"
	ServiceStatusStopped     ServiceStatus = "STOPPED"
	ServiceStatusPaused      ServiceStatus = "PAUSED"
	ServiceStatusError       ServiceStatus = "ERROR"
	ServiceStatusStarting    ServiceStatus = "STARTING"
	ServiceStatusStopping    ServiceStatus = "STOPPING"
	ServiceStatusMaintenance ServiceStatus = "MAINTENANCE"
)

type ServiceType string

const (
	ServiceTypeEmail   ServiceType = "EMAIL"
	ServiceTypeSMS     ServiceType = "SMS"
	ServiceTypePush    ServiceType = "PUSH"
	ServiceTypeWebhook ServiceType = "WEBHOOK"
	ServiceTypeQueue   ServiceType = "QUEUE"
)

// NotificationService is the registry record of a background worker.
// DesiredStatus is what operators asked for; Status and the health fields
// are only written from worker heartbeats or heartbeat timeouts.
type NotificationService struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	Name            string        `json:"name" db:"name"`
	ServiceType     ServiceType   `json:"service_type" db:"service_type"`
	Description     string        `json:"description" db:"description"`
	Version         string        `json:"version" db:"version"`
	Status          ServiceStatus `json:"status" db:"status"`
	DesiredStatus   ServiceStatus `json:"desired_status" db:"desired_status"`
	EndpointURL     string        `json:"endpoint_url,omitempty" db:"endpoint_url"`
	HealthCheckURL  string        `json:"health_check_url,omitempty" db:"health_check_url"`
	IsEnabled       bool          `json:"is_enabled" db:"is_enabled"`
	MaxWorkers      int           `json:"max_workers" db:"max_workers"`
	QueueLimit      int           `json:"queue_limit" db:"queue_limit"`
	RetryAttempts   int           `json:"retry_attempts" db:"retry_attempts"`
	TimeoutSeconds  int           `json:"timeout_seconds" db:"timeout_seconds"`
	WorkerID        string        `json:"worker_id,omitempty" db:"worker_id"`
	StartedAt       *time.Time    `json:"started_at,omitempty" db:"started_at"`
	LastHeartbeatAt *time.Time    `json:"last_health_check,omitempty" db:"last_heartbeat_at"`
	IsHealthy       bool          `json:"is_healthy" db:"is_healthy"`
	ErrorCount      int           `json:"error_count" db:"error_count"`
	LastError       string        `json:"last_error,omitempty" db:"last_error"`
	TotalProcessed  int64         `json:"total_processed" db:"total_processed"`
	TotalFailed     int64         `json:"total_failed" db:"total_failed"`
	SuccessRate     float64       `json:"success_rate" db:"success_rate"`
	CPUUsage        float64       `json:"cpu_usage" db:"cpu_usage"`
	MemoryUsage     float64       `json:"memory_usage" db:"memory_usage"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// ServiceAction is an operator control request.
type ServiceAction string

const (
	ServiceActionStart   ServiceAction = "start"
	ServiceActionStop    ServiceAction = "stop"
	ServiceActionPause   ServiceAction = "pause"
	ServiceActionResume  ServiceAction = "resume"
	ServiceActionRestart ServiceAction = "restart"
)

// RequestAction records the operator's intent. The recorded Status moves to
// the transitional state; the worker confirms the final state by heartbeat.
func (s *NotificationService) RequestAction(action ServiceAction, now time.Time) error {
	var status, desired ServiceStatus
	switch action {
	case ServiceActionStart:
		status, desired = ServiceStatusStarting, ServiceStatusRunning
	case ServiceActionStop:
		status, desired = ServiceStatusStopping, ServiceStatusStopped
	case ServiceActionPause:
		status, desired = ServiceStatusPaused, ServiceStatusPaused
	case ServiceActionResume:
		if s.Status != ServiceStatusPaused {
			return &TransitionError{Entity: "service", From: string(s.Status), To: string(ServiceStatusRunning)}
		}
		status, desired = ServiceStatusRunning, ServiceStatusRunning
	case ServiceActionRestart:
		status, desired = ServiceStatusStarting, ServiceStatusRunning
	default:
		return &TransitionError{Entity: "service", From: string(s.Status), To: string(action)}
	}
	if err := ServiceTransitions.check("service", s.Status, status); err != nil {
		return err
	}
	if action == ServiceActionStart || action == ServiceActionRestart {
		s.ErrorCount = 0
		s.LastError = ""
	}
	s.Status = status
	s.DesiredStatus = desired
	s.UpdatedAt = now
	return nil
}

// Heartbeat is published by workers on every cycle.
type Heartbeat struct {
	Service     string        `json:"service"`
	WorkerID    string        `json:"worker_id"`
	Status      ServiceStatus `json:"status"`
	Version     string        `json:"version"`
	Processed   int64         `json:"processed"`
	Failed      int64         `json:"failed"`
	LastError   string        `json:"last_error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CPUUsage    float64       `json:"cpu_usage"`
	MemoryUsage float64       `json:"memory_usage"`
	SentAt      time.Time     `json:"sent_at"`
}

// ApplyHeartbeat copies reported state onto the record.
func (s *NotificationService) ApplyHeartbeat(hb Heartbeat) {
	s.Status = hb.Status
	s.WorkerID = hb.WorkerID
	if hb.Version != "" {
		s.Version = hb.Version
	}
	started := hb.StartedAt
	s.StartedAt = &started
	sent := hb.SentAt
	s.LastHeartbeatAt = &sent
	s.TotalProcessed = hb.Processed
	s.TotalFailed = hb.Failed
	if hb.LastError != "" {
		s.LastError = hb.LastError
		s.ErrorCount++
	}
	s.IsHealthy = hb.Status == ServiceStatusRunning || hb.Status == ServiceStatusPaused
	s.SuccessRate = 100
	if total := hb.Processed + hb.Failed; total > 0 {
		s.SuccessRate = round2(float64(hb.Processed) / float64(total) * 100)
	}
	s.CPUUsage = hb.CPUUsage
	s.MemoryUsage = hb.MemoryUsage
	s.UpdatedAt = sent
}

// MarkUnresponsive flags a service whose heartbeats stopped arriving.
func (s *NotificationService) MarkUnresponsive(now time.Time) {
	s.Status = ServiceStatusError
	s.IsHealthy = false
	s.LastError = "heartbeat timeout"
	s.ErrorCount++
	s.UpdatedAt = now
}

// IsStale reports whether the last heartbeat is older than timeout.
func (s *NotificationService) IsStale(timeout time.Duration, now time.Time) bool {
	if s.Status == ServiceStatusStopped || s.Status == ServiceStatusMaintenance {
		return false
	}
	if s.LastHeartbeatAt == nil {
		return s.Status == ServiceStatusRunning || s.Status == ServiceStatusPaused
	}
	return now.Sub(*s.LastHeartbeatAt) > timeout
}

// Uptime is zero unless the service is running.
func (s *NotificationService) Uptime(now time.Time) time.Duration {
	if s.StartedAt == nil || s.Status != ServiceStatusRunning {
		return 0
	}
	return now.Sub(*s.StartedAt)
}

// AllowsWork reports whether workers of this service may take jobs.
func (s *NotificationService) AllowsWork() bool {
	return s.IsEnabled && s.DesiredStatus == ServiceStatusRunning
}

// DefaultServices is the registry seed. Services with a hosting worker start
// in STARTING and become RUNNING on their first heartbeat.
func DefaultServices() []NotificationService {
	hosted := func(name string, typ ServiceType, desc string, workers, limit, retries, timeout int) NotificationService {
		return NotificationService{
			Name: name, ServiceType: typ, Description: desc, Version: "1.0.0",
			Status: ServiceStatusStarting, DesiredStatus: ServiceStatusRunning, IsEnabled: true,
			MaxWorkers: workers, QueueLimit: limit, RetryAttempts: retries, TimeoutSeconds: timeout,
		}
	}
	webhook := hosted("webhook", ServiceTypeWebhook, "Webhook delivery service", 6, 1000, 2, 90)
	webhook.Status, webhook.DesiredStatus, webhook.IsEnabled = ServiceStatusStopped, ServiceStatusStopped, false

	return []NotificationService{
		hosted("email", ServiceTypeEmail, "Email delivery service", 10, 5000, 3, 60),
		hosted("sms", ServiceTypeSMS, "SMS delivery service", 5, 2000, 3, 30),
		hosted("push", ServiceTypePush, "Push notification service", 8, 3000, 3, 45),
		webhook,
		hosted("queue", ServiceTypeQueue, "Notification queue processor", 15, 10000, 5, 30),
	}
}

// ChannelsFor maps a delivery service to the log channels it serves.
func ChannelsFor(t ServiceType) []Channel {
	switch t {
	case ServiceTypeEmail:
		return []Channel{ChannelEmail}
	case ServiceTypeSMS:
		return []Channel{ChannelSMS}
	case ServiceTypePush:
		return []Channel{ChannelPush, ChannelInApp}
	}
	return nil
}
