package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/theblitlabs/sentinel/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusOK indicates the component is healthy
	StatusOK Status = "OK"
	// StatusWarning indicates the component has issues but is still functional
	StatusWarning Status = "WARNING"
	// StatusError indicates the component is not functioning
	StatusError Status = "ERROR"
)

// ComponentHealth represents the health status of a system component
type ComponentHealth struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message"`
	LastChecked time.Time `json:"last_checked"`
}

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecker monitors the health of registered components
type HealthChecker struct {
	components map[string]*ComponentHealth
	checks     map[string]CheckFunc
	mu         sync.RWMutex
	checkFreq  time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(checkFreq time.Duration) *HealthChecker {
	if checkFreq == 0 {
		checkFreq = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &HealthChecker{
		components: make(map[string]*ComponentHealth),
		checks:     make(map[string]CheckFunc),
		checkFreq:  checkFreq,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register adds a component check. Registered components start in WARNING
// until the first check runs.
func (hc *HealthChecker) Register(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checks[name] = check
	hc.components[name] = &ComponentHealth{
		Name:    name,
		Status:  StatusWarning,
		Message: "not checked yet",
	}
}

// Start begins periodic health checks
func (hc *HealthChecker) Start() {
	log := logger.WithComponent("health_checker")
	log.Info().Dur("frequency", hc.checkFreq).Msg("Starting health checker")

	ticker := time.NewTicker(hc.checkFreq)
	go func() {
		defer ticker.Stop()

		hc.CheckAll()

		for {
			select {
			case <-ticker.C:
				hc.CheckAll()
			case <-hc.ctx.Done():
				log.Info().Msg("Health checker stopped")
				return
			}
		}
	}()
}

// Stop halts the health checker
func (hc *HealthChecker) Stop() {
	if hc.cancel != nil {
		hc.cancel()
	}
}

// CheckAll runs all registered checks
func (hc *HealthChecker) CheckAll() {
	hc.mu.RLock()
	checks := make(map[string]CheckFunc, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	hc.mu.RUnlock()

	for name, check := range checks {
		hc.runCheck(name, check)
	}
}

func (hc *HealthChecker) runCheck(name string, check CheckFunc) {
	log := logger.WithComponent("health_checker." + name)

	health := &ComponentHealth{
		Name:        name,
		LastChecked: time.Now(),
	}

	ctx, cancel := context.WithTimeout(hc.ctx, 5*time.Second)
	defer cancel()

	if err := check(ctx); err != nil {
		health.Status = StatusError
		health.Message = err.Error()
		log.Error().Err(err).Msg("Component unhealthy")
	} else {
		health.Status = StatusOK
		health.Message = "responding"
		log.Debug().Msg("Component healthy")
	}

	hc.mu.Lock()
	hc.components[name] = health
	hc.mu.Unlock()
}

// GetAllHealth returns the health status of all components
func (hc *HealthChecker) GetAllHealth() map[string]*ComponentHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(hc.components))
	for k, v := range hc.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// GetComponentHealth returns the health status of a specific component
func (hc *HealthChecker) GetComponentHealth(name string) *ComponentHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	if component, exists := hc.components[name]; exists {
		componentCopy := *component
		return &componentCopy
	}

	return nil
}

type healthResponse struct {
	Status     Status                      `json:"status"`
	Components map[string]*ComponentHealth `json:"components"`
}

// Handler serves the aggregate health report. Any component in ERROR makes
// the endpoint return 503.
func (hc *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		components := hc.GetAllHealth()

		status := StatusOK
		code := http.StatusOK
		for _, component := range components {
			if component.Status == StatusError {
				status = StatusError
				code = http.StatusServiceUnavailable
				break
			}
			if component.Status == StatusWarning {
				status = StatusWarning
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(healthResponse{Status: status, Components: components}); err != nil {
			logger.WithComponent("health_checker").Error().Err(err).Msg("Failed to encode health report")
		}
	})
}
