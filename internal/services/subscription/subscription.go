// Package subscription содержит бизнес-логику жизненного цикла подписки:
// создание, чтение, продление и удаление с проверкой инвариантов.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/magabrotheeeer/subscription-manager/internal/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/datetime"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

var (
	// ErrValidation входные данные нарушают инвариант подписки.
	ErrValidation = errors.New("validation error")
	// ErrNotFound подписка с указанным ID отсутствует.
	ErrNotFound = errors.New("subscription not found")
)

// Repository определяет методы хранилища, нужные сервису.
type Repository interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)
	GetSubscription(ctx context.Context, id int64) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, id int64, upd models.SubscriptionUpdate) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
}

// Cache описывает методы для кэширования подписок.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значения из кеша по ключам.
	Invalidate(ctx context.Context, keys ...string) error
}

// Service реализует операции над подписками. Ошибки кеша только логируются.
type Service struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewService создает новый экземпляр Service. Если cache равен nil, кеширование отключено.
func NewService(repo Repository, c Cache, ttl time.Duration, log *slog.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{
		repo:  repo,
		cache: c,
		ttl:   ttl,
		log:   log,
	}
}

// Create проверяет запрос и сохраняет новую активную подписку.
func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Subscription, error) {
	const op = "services.subscription.Create"

	// адрес уходит в RCPT TO, поэтому форма с отображаемым именем не принимается
	addr, err := mail.ParseAddress(req.UserEmail)
	if err != nil || addr.Address != req.UserEmail {
		return nil, fmt.Errorf("%w: invalid user_email", ErrValidation)
	}
	start, err := datetime.Parse(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start_date", ErrValidation)
	}
	end, err := datetime.Parse(req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end_date", ErrValidation)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end_date must be after start_date", ErrValidation)
	}

	created, err := s.repo.CreateSubscription(ctx, models.Subscription{
		UserEmail: req.UserEmail,
		StartDate: start,
		EndDate:   end,
		Status:    models.StatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created new subscription", slog.Int64("id", created.ID))
	s.store(ctx, created)
	return created, nil
}

// Get возвращает подписку по ID, используя кеш или репозиторий.
func (s *Service) Get(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "services.subscription.Get"

	key := cache.SubscriptionKey(id)
	var cached models.Subscription
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("failed to read from cache", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}
	s.store(ctx, sub)
	return sub, nil
}

// Renew устанавливает новую дату окончания и переводит подписку в active.
// Новая дата сравнивается только с датой начала подписки.
func (s *Service) Renew(ctx context.Context, id int64, req models.RenewRequest) (*models.Subscription, error) {
	const op = "services.subscription.Renew"

	current, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}

	end, err := datetime.Parse(req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end_date", ErrValidation)
	}
	if !end.After(current.StartDate) {
		return nil, fmt.Errorf("%w: end_date must be after start_date", ErrValidation)
	}

	active := models.StatusActive
	renewed, err := s.repo.UpdateSubscription(ctx, id, models.SubscriptionUpdate{
		EndDate: &end,
		Status:  &active,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}

	s.log.Info("renewed subscription",
		slog.Int64("id", id),
		slog.String("previous_status", string(current.Status)),
		slog.String("end_date", renewed.EndDate.Format(time.RFC3339)))
	s.store(ctx, renewed)
	return renewed, nil
}

// Delete безвозвратно удаляет подписку и инвалидирует кеш.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "services.subscription.Delete"

	if err := s.repo.DeleteSubscription(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, mapStoreError(err))
	}

	key := cache.SubscriptionKey(id)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", key), sl.Err(err))
	}
	s.log.Info("deleted subscription", slog.Int64("id", id))
	return nil
}

func (s *Service) store(ctx context.Context, sub *models.Subscription) {
	key := cache.SubscriptionKey(sub.ID)
	if err := s.cache.Set(ctx, key, sub, s.ttl); err != nil {
		s.log.Warn("failed to cache subscription", slog.String("key", key), sl.Err(err))
	}
}

func mapStoreError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
