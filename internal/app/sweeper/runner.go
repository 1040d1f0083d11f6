package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/sweep"
)

// Источники запуска обхода.
const (
	SourceCron  = "cron"
	SourceQueue = "queue"
	SourceOnce  = "once"
)

// ErrAlreadyRunning обход уже выполняется, новый запуск пропущен.
var ErrAlreadyRunning = errors.New("sweep is already running")

// Sweeper выполняет один обход подписок.
type Sweeper interface {
	Run(ctx context.Context, now time.Time) (sweep.Result, error)
}

// Runner запускает обход по расписанию, из очереди или вручную и
// не допускает двух одновременных запусков в одном процессе.
type Runner struct {
	sweeper Sweeper
	metrics *metrics.Sweep
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewRunner создает Runner. Нулевой timeout означает запуск без ограничения времени.
func NewRunner(s Sweeper, m *metrics.Sweep, timeout time.Duration, log *slog.Logger) *Runner {
	if m == nil {
		m = metrics.NewSweep(nil)
	}
	return &Runner{
		sweeper: s,
		metrics: m,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Trigger выполняет обход, если другой обход сейчас не идет.
// Иначе возвращает ErrAlreadyRunning.
func (r *Runner) Trigger(ctx context.Context, source string) (sweep.Result, error) {
	const op = "app.sweeper.Trigger"

	log := r.log.With(sl.Op(op), slog.String("source", source))

	if !r.mu.TryLock() {
		r.metrics.Runs.WithLabelValues(metrics.ResultSkipped).Inc()
		log.Warn("sweep skipped, previous run still in progress")
		return sweep.Result{}, ErrAlreadyRunning
	}
	defer r.mu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.sweeper.Run(ctx, r.now())
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// HandleMessage обрабатывает сообщение SweepTrigger из очереди.
// Сообщение, пришедшее во время идущего обхода, подтверждается без повторного запуска.
func (r *Runner) HandleMessage(ctx context.Context, body []byte) error {
	const op = "app.sweeper.HandleMessage"

	var msg models.SweepTrigger
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%s: failed to decode sweep trigger: %w", op, err)
	}
	source := SourceQueue
	if msg.Source != "" {
		source = SourceQueue + ":" + msg.Source
	}
	r.log.Info("sweep requested via queue",
		slog.String("source", source),
		slog.String("requested_at", msg.RequestedAt))

	_, err := r.Trigger(ctx, source)
	if errors.Is(err, ErrAlreadyRunning) {
		return nil
	}
	return err
}
