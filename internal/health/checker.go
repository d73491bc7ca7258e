package health

import (
	"context"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Probe checks one dependency. A failing non-critical probe only degrades
// the overall status.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HealthChecker manages health checks for all services
type HealthChecker struct {
	probes     []Probe
	healthRepo models.SystemHealthRepository
	logger     *logrus.Logger
	timeout    time.Duration
	started    time.Time
}

func NewHealthChecker(healthRepo models.SystemHealthRepository, logger *logrus.Logger, probes ...Probe) *HealthChecker {
	return &HealthChecker{
		probes:     probes,
		healthRepo: healthRepo,
		logger:     logger,
		timeout:    5 * time.Second,
		started:    time.Now(),
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// Ping adapts a context-free ping such as database.Manager.PingDatabase.
func Ping(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}

func (h *HealthChecker) check(ctx context.Context, probe Probe) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := probe.Check(ctx)
	responseTime := int(time.Since(start).Milliseconds())

	status := StatusHealthy
	errorMsg := ""
	if err != nil {
		status = StatusUnhealthy
		if !probe.Critical {
			status = StatusDegraded
		}
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", probe.Name).Error("Health check failed")
	}

	if h.healthRepo != nil {
		if err := h.healthRepo.UpdateServiceHealth(probe.Name, status, responseTime, errorMsg); err != nil {
			h.logger.WithError(err).WithField("service", probe.Name).Warn("Failed to record health status")
		}
	}

	return ServiceHealth{
		Name:         probe.Name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll runs every probe concurrently
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := make([]ServiceHealth, len(h.probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, probe := range h.probes {
		i, probe := i, probe
		g.Go(func() error {
			services[i] = h.check(gctx, probe)
			return nil
		})
	}
	_ = g.Wait()

	return OverallHealth{
		Status:   overallStatus(services),
		Services: services,
		Uptime:   h.getUptime(),
	}
}

// CheckCached returns the statuses recorded by the last checks
func (h *HealthChecker) CheckCached() (*OverallHealth, error) {
	recorded, err := h.healthRepo.GetAllServicesHealth()
	if err != nil {
		return nil, err
	}

	services := make([]ServiceHealth, len(recorded))
	for i, health := range recorded {
		services[i] = ServiceHealth{
			Name:         health.ServiceName,
			Status:       health.Status,
			ResponseTime: health.ResponseTimeMs,
			Error:        health.ErrorMessage,
			LastChecked:  health.CheckedAt.Format(time.RFC3339),
		}
	}

	return &OverallHealth{
		Status:   overallStatus(services),
		Services: services,
		Uptime:   h.getUptime(),
	}, nil
}

func overallStatus(services []ServiceHealth) string {
	status := StatusHealthy
	for _, service := range services {
		if service.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if service.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

func (h *HealthChecker) getUptime() string {
	return time.Since(h.started).Round(time.Second).String()
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := h.CheckAll(ctx)
			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}
