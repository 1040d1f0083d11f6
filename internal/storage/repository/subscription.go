package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

const subscriptionColumns = `id, user_email, start_date, end_date, status, created_at, updated_at`

// CreateSubscription вставляет новую подписку и возвращает её вместе с
// назначенными базой ID и временными метками.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_email, start_date, end_date, status)
			  VALUES ($1, $2, $3, $4)
			  RETURNING ` + subscriptionColumns
	row := s.DB.QueryRowContext(ctx, query, sub.UserEmail, sub.StartDate, sub.EndDate, string(sub.Status))

	result, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetSubscription возвращает подписку по её ID.
func (s *Storage) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions WHERE id = $1`
	result, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateSubscription применяет частичное обновление и обновляет updated_at.
func (s *Storage) UpdateSubscription(ctx context.Context, id int64, upd models.SubscriptionUpdate) (*models.Subscription, error) {
	const op = "storage.UpdateSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var endDate sql.NullTime
	if upd.EndDate != nil {
		endDate = sql.NullTime{Time: *upd.EndDate, Valid: true}
	}
	var status sql.NullString
	if upd.Status != nil {
		status = sql.NullString{String: string(*upd.Status), Valid: true}
	}

	query := `UPDATE subscriptions
			  SET end_date = COALESCE($1, end_date),
			      status = COALESCE($2, status),
			      updated_at = NOW()
			  WHERE id = $3
			  RETURNING ` + subscriptionColumns
	result, err := scanSubscription(s.DB.QueryRowContext(ctx, query, endDate, status, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteSubscription удаляет подписку по ID.
func (s *Storage) DeleteSubscription(ctx context.Context, id int64) error {
	const op = "storage.DeleteSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ListActiveExpired возвращает активные подписки с end_date <= now без блокировки строк.
// Обход использует ту же выборку с FOR UPDATE внутри ExpireSubscriptions.
func (s *Storage) ListActiveExpired(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	const op = "storage.ListActiveExpired"

	result, err := listActiveExpired(ctx, s.DB, now, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListActiveExpiringWithin возвращает активные подписки, у которых
// now < end_date <= now + horizon.
func (s *Storage) ListActiveExpiringWithin(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Subscription, error) {
	const op = "storage.ListActiveExpiringWithin"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE status = $1
			    AND end_date > $2
			    AND end_date <= $3
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, string(models.StatusActive), now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result, err := scanSubscriptions(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ExpireSubscriptions в одной транзакции переводит все активные подписки
// с end_date <= now в статус expired и возвращает изменённые записи.
// При любой ошибке транзакция откатывается целиком.
func (s *Storage) ExpireSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	const op = "storage.ExpireSubscriptions"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	expired, err := listActiveExpired(ctx, tx, now, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE subscriptions
			  SET status = $1, updated_at = NOW()
			  WHERE id = $2
			  RETURNING updated_at`
	for _, sub := range expired {
		if err := tx.QueryRowContext(ctx, query, string(models.StatusExpired), sub.ID).Scan(&sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: subscription %d: %w", op, sub.ID, err)
		}
		sub.Status = models.StatusExpired
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return expired, nil
}

func listActiveExpired(ctx context.Context, q querier, now time.Time, forUpdate bool) ([]*models.Subscription, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE status = $1
			    AND end_date <= $2
			  ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, string(models.StatusActive), now)
	if err != nil {
		return nil, err
	}
	return scanSubscriptions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		item   models.Subscription
		status string
	)
	if err := row.Scan(&item.ID, &item.UserEmail, &item.StartDate, &item.EndDate,
		&status, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Status = models.Status(status)
	return &item, nil
}

func scanSubscriptions(rows *sql.Rows) ([]*models.Subscription, error) {
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Subscription, 0)
	for rows.Next() {
		item, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
