package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
)

// DefaultStatsSchedule период обновления статистики реестра
const DefaultStatsSchedule = "@every 1m"

// PlanCounter источник статистики по тарифам
type PlanCounter interface {
	CountByPlan(ctx context.Context) ([]domain.PlanCount, error)
}

// PlanCountSink получатель статистики, обычно gauge в Prometheus
type PlanCountSink interface {
	SetPlanCounts(counts []domain.PlanCount)
}

// StatsJob периодически пересчитывает число тенантов по тарифам
type StatsJob struct {
	counter PlanCounter
	sink    PlanCountSink
	logger  logger.Logger
	cron    *cron.Cron
	timeout time.Duration

	mu        sync.Mutex
	isRunning bool
}

// NewStatsJob создает задачу
func NewStatsJob(counter PlanCounter, sink PlanCountSink, log logger.Logger) *StatsJob {
	return &StatsJob{
		counter: counter,
		sink:    sink,
		logger:  log,
		cron:    cron.New(),
		timeout: 30 * time.Second,
	}
}

// RunOnce один пересчет
func (j *StatsJob) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	counts, err := j.counter.CountByPlan(ctx)
	if err != nil {
		return fmt.Errorf("count tenants by plan: %w", err)
	}
	j.sink.SetPlanCounts(counts)

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	j.logger.Debug("Tenant stats refreshed", logger.Int("tenants", total), logger.Int("series", len(counts)))
	return nil
}

// Start выполняет первый пересчет сразу и регистрирует расписание
func (j *StatsJob) Start(ctx context.Context, schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isRunning {
		return nil
	}
	if schedule == "" {
		schedule = DefaultStatsSchedule
	}

	if _, err := j.cron.AddFunc(schedule, func() {
		if err := j.RunOnce(ctx); err != nil {
			j.logger.Warn("Failed to refresh tenant stats", logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}

	if err := j.RunOnce(ctx); err != nil {
		j.logger.Warn("Initial tenant stats refresh failed", logger.Error(err))
	}

	j.cron.Start()
	j.isRunning = true
	j.logger.Info("Tenant stats job started", logger.String("schedule", schedule))
	return nil
}

// Stop останавливает расписание и ждет текущий запуск
func (j *StatsJob) Stop(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.isRunning {
		return
	}

	select {
	case <-j.cron.Stop().Done():
		j.logger.Info("Tenant stats job stopped")
	case <-ctx.Done():
		j.logger.Warn("Tenant stats job stop timed out", logger.Error(ctx.Err()))
	}
	j.isRunning = false
}
