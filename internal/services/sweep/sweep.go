// Package sweep реализует ежедневный обход подписок: перевод истекших
// подписок в статус expired и рассылку напоминаний.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/datetime"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/sender"
)

// DefaultHorizon окно, в котором подписка считается скоро истекающей.
const DefaultHorizon = 72 * time.Hour

const (
	subjectPostExpiry = "Your Subscription Has Expired"
	subjectPreExpiry  = "Your Subscription Expires in %d Days"
)

// Store методы хранилища, нужные обходу.
type Store interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	ListActiveExpiringWithin(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Subscription, error)
}

// Notifier отправляет письмо по шаблону.
type Notifier interface {
	Send(ctx context.Context, to, templateID, subject string, data models.NotificationData) (bool, error)
}

// Invalidator удаляет записи из кеша.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Result итог одного запуска обхода.
type Result struct {
	RunID               string
	Expired             int
	Expiring            int
	NotificationsSent   int
	NotificationsFailed int
}

// Service выполняет обход подписок.
type Service struct {
	store          Store
	notifier       Notifier
	cache          Invalidator
	metrics        *metrics.Sweep
	horizon        time.Duration
	renewalBaseURL string
	log            *slog.Logger
}

// NewService создает новый экземпляр Service. Нулевой horizon заменяется на
// DefaultHorizon, nil cache и nil m отключают инвалидацию кеша и метрики.
func NewService(store Store, notifier Notifier, c Invalidator, m *metrics.Sweep,
	horizon time.Duration, renewalBaseURL string, log *slog.Logger) *Service {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if c == nil {
		c = cache.Noop{}
	}
	if m == nil {
		m = metrics.NewSweep(nil)
	}
	return &Service{
		store:          store,
		notifier:       notifier,
		cache:          c,
		metrics:        m,
		horizon:        horizon,
		renewalBaseURL: strings.TrimRight(renewalBaseURL, "/"),
		log:            log,
	}
}

// Run выполняет один обход на момент now.
// Сначала в одной транзакции истекшие подписки переводятся в expired,
// затем по каждой из них и по каждой подписке, истекающей в пределах
// horizon, отправляется письмо. Сбой доставки только учитывается в Result,
// ошибка хранилища или шаблона прерывает запуск.
func (s *Service) Run(ctx context.Context, now time.Time) (res Result, err error) {
	const op = "services.sweep.Run"

	res.RunID = uuid.NewString()
	now = now.UTC()
	log := s.log.With(
		sl.Op(op),
		slog.String("run_id", res.RunID),
		slog.Time("now", now),
	)

	started := time.Now()
	defer func() {
		s.metrics.Duration.Observe(time.Since(started).Seconds())
		if err != nil {
			s.metrics.Runs.WithLabelValues(metrics.ResultFailure).Inc()
			log.Error("sweep run failed", sl.Err(err))
			return
		}
		s.metrics.Runs.WithLabelValues(metrics.ResultSuccess).Inc()
	}()

	log.Info("sweep run started")

	expired, err := s.store.ExpireSubscriptions(ctx, now)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.Expired = len(expired)
	s.metrics.Expired.Add(float64(len(expired)))
	log.Info("expired subscriptions committed", slog.Int("count", len(expired)))

	s.invalidate(ctx, log, expired)

	expiring, err := s.store.ListActiveExpiringWithin(ctx, now, s.horizon)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.Expiring = len(expiring)
	log.Info("found expiring subscriptions", slog.Int("count", len(expiring)))

	for _, sub := range expired {
		data := s.notificationData(sub, 0)
		if err = s.notify(ctx, log, &res, sub, sender.TemplatePostExpiry, subjectPostExpiry, data); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
	}

	for _, sub := range expiring {
		days := datetime.DaysUntil(now, sub.EndDate)
		data := s.notificationData(sub, days)
		subject := fmt.Sprintf(subjectPreExpiry, days)
		if err = s.notify(ctx, log, &res, sub, sender.TemplatePreExpiry, subject, data); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("sweep run finished",
		slog.Int("expired", res.Expired),
		slog.Int("expiring", res.Expiring),
		slog.Int("notifications_sent", res.NotificationsSent),
		slog.Int("notifications_failed", res.NotificationsFailed))
	return res, nil
}

// RenewalLink возвращает ссылку на продление подписки.
func (s *Service) RenewalLink(id int64) string {
	return s.renewalBaseURL + "/" + strconv.FormatInt(id, 10)
}

func (s *Service) notificationData(sub *models.Subscription, days int) models.NotificationData {
	return models.NotificationData{
		UserEmail:     sub.UserEmail,
		EndDate:       datetime.FormatDate(sub.EndDate),
		RenewalLink:   s.RenewalLink(sub.ID),
		DaysRemaining: days,
	}
}

func (s *Service) notify(ctx context.Context, log *slog.Logger, res *Result, sub *models.Subscription,
	templateID, subject string, data models.NotificationData) error {
	delivered, err := s.notifier.Send(ctx, sub.UserEmail, templateID, subject, data)
	if err != nil {
		s.metrics.Notifications.WithLabelValues(templateID, metrics.ResultFailure).Inc()
		return fmt.Errorf("subscription %d: %w", sub.ID, err)
	}
	if !delivered {
		res.NotificationsFailed++
		s.metrics.Notifications.WithLabelValues(templateID, metrics.ResultFailure).Inc()
		log.Warn("notification not delivered",
			slog.Int64("subscription_id", sub.ID),
			slog.String("template", templateID))
		return nil
	}
	res.NotificationsSent++
	s.metrics.Notifications.WithLabelValues(templateID, metrics.ResultSuccess).Inc()
	return nil
}

func (s *Service) invalidate(ctx context.Context, log *slog.Logger, subs []*models.Subscription) {
	if len(subs) == 0 {
		return
	}
	keys := make([]string, 0, len(subs))
	for _, sub := range subs {
		keys = append(keys, cache.SubscriptionKey(sub.ID))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		log.Warn("failed to invalidate expired subscriptions in cache", sl.Err(err))
	}
}
