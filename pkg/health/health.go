package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker интерфейс для проверки здоровья сервиса
type HealthChecker interface {
	Check(ctx context.Context) *HealthStatus
}

// CheckFunc проверка одной зависимости
type CheckFunc func(ctx context.Context) error

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Status представляет статус зависимости
type Status struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Статусы
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CompositeHealthChecker проверяет набор зависимостей.
// Обязательные (critical) зависимости переводят сервис в unhealthy,
// остальные только в degraded.
type CompositeHealthChecker struct {
	version  string
	timeout  time.Duration
	mu       sync.RWMutex
	checks   map[string]CheckFunc
	critical map[string]bool
}

// NewCompositeHealthChecker создает новый CompositeHealthChecker
func NewCompositeHealthChecker(version string, timeout time.Duration) *CompositeHealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &CompositeHealthChecker{
		version:  version,
		timeout:  timeout,
		checks:   make(map[string]CheckFunc),
		critical: make(map[string]bool),
	}
}

// Register добавляет проверку зависимости
func (c *CompositeHealthChecker) Register(name string, critical bool, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.critical[name] = critical
}

// Check выполняет все проверки параллельно
func (c *CompositeHealthChecker) Check(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	defer c.mu.RUnlock()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(c.checks))
	for name, check := range c.checks {
		go func(name string, check CheckFunc) {
			results <- result{name: name, err: check(ctx)}
		}(name, check)
	}

	status := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   c.version,
		Services:  make(map[string]Status, len(c.checks)),
	}
	for range c.checks {
		r := <-results
		if r.err == nil {
			status.Services[r.name] = Status{Status: StatusHealthy}
			continue
		}
		status.Services[r.name] = Status{Status: StatusUnhealthy, Details: r.err.Error()}
		if c.critical[r.name] {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}

	return status
}

// Handler создает HTTP обработчик для health check эндпоинта
func Handler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())

		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

// ReadyHandler возвращает 200, если сервис готов принимать трафик
func ReadyHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker.Check(r.Context()).Status == StatusUnhealthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// LiveHandler возвращает 200, если процесс жив
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
