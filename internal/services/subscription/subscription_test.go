package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) UpdateSubscription(ctx context.Context, id int64, upd models.SubscriptionUpdate) (*models.Subscription, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) DeleteSubscription(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *CacheMock) Invalidate(ctx context.Context, keys ...string) error {
	args := make([]any, 0, len(keys)+1)
	args = append(args, ctx)
	for _, k := range keys {
		args = append(args, k)
	}
	return m.Called(args...).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var (
	jan1  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

func TestService_Create(t *testing.T) {
	stored := &models.Subscription{
		ID:        42,
		UserEmail: "user@x.com",
		StartDate: jan1,
		EndDate:   jan31,
		Status:    models.StatusActive,
	}

	tests := []struct {
		name       string
		req        models.CreateRequest
		setupMocks func(r *RepoMock, c *CacheMock)
		wantID     int64
		wantErr    error
	}{
		{
			name: "success create",
			req:  models.CreateRequest{UserEmail: "user@x.com", StartDate: "2024-01-01", EndDate: "2024-01-31"},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(s models.Subscription) bool {
					return s.UserEmail == "user@x.com" &&
						s.StartDate.Equal(jan1) &&
						s.EndDate.Equal(jan31) &&
						s.Status == models.StatusActive
				})).Return(stored, nil).Once()
				c.On("Set", mock.Anything, "subscription:42", stored, time.Hour).Return(nil).Once()
			},
			wantID: 42,
		},
		{
			name: "rfc3339 dates",
			req: models.CreateRequest{
				UserEmail: "user@x.com",
				StartDate: "2024-01-01T00:00:00Z",
				EndDate:   "2024-01-31T00:00:00Z",
			},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("CreateSubscription", mock.Anything, mock.Anything).Return(stored, nil).Once()
				c.On("Set", mock.Anything, "subscription:42", stored, time.Hour).Return(nil).Once()
			},
			wantID: 42,
		},
		{
			name:       "equal dates",
			req:        models.CreateRequest{UserEmail: "user@x.com", StartDate: "2024-01-01", EndDate: "2024-01-01"},
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    ErrValidation,
		},
		{
			name:       "end before start",
			req:        models.CreateRequest{UserEmail: "user@x.com", StartDate: "2024-02-01", EndDate: "2024-01-01"},
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    ErrValidation,
		},
		{
			name:       "malformed email",
			req:        models.CreateRequest{UserEmail: "not-an-email", StartDate: "2024-01-01", EndDate: "2024-01-31"},
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    ErrValidation,
		},
		{
			name:       "email with display name",
			req:        models.CreateRequest{UserEmail: "Bob <bob@x.com>", StartDate: "2024-01-01", EndDate: "2024-01-31"},
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    ErrValidation,
		},
		{
			name:       "malformed date",
			req:        models.CreateRequest{UserEmail: "user@x.com", StartDate: "01-01-2024", EndDate: "2024-01-31"},
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    ErrValidation,
		},
		{
			name: "cache set error logs warning but returns record",
			req:  models.CreateRequest{UserEmail: "user@x.com", StartDate: "2024-01-01", EndDate: "2024-01-31"},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("CreateSubscription", mock.Anything, mock.Anything).Return(stored, nil).Once()
				c.On("Set", mock.Anything, "subscription:42", stored, time.Hour).Return(errors.New("redis down")).Once()
			},
			wantID: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			svc := NewService(repo, cache, time.Hour, newNoopLogger())

			tt.setupMocks(repo, cache)

			got, err := svc.Create(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				repo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, got.ID)
				assert.Equal(t, models.StatusActive, got.Status)
			}

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestService_Get(t *testing.T) {
	stored := &models.Subscription{ID: 1, UserEmail: "user@x.com", Status: models.StatusActive}

	t.Run("cache hit", func(t *testing.T) {
		repo := new(RepoMock)
		cache := new(CacheMock)
		cache.On("Get", mock.Anything, "subscription:1", mock.Anything).
			Run(func(args mock.Arguments) {
				*args.Get(2).(*models.Subscription) = *stored
			}).Return(true, nil).Once()

		svc := NewService(repo, cache, time.Hour, newNoopLogger())
		got, err := svc.Get(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, stored, got)
		repo.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
	})

	t.Run("cache miss reads repository and fills cache", func(t *testing.T) {
		repo := new(RepoMock)
		cache := new(CacheMock)
		cache.On("Get", mock.Anything, "subscription:1", mock.Anything).Return(false, nil).Once()
		repo.On("GetSubscription", mock.Anything, int64(1)).Return(stored, nil).Once()
		cache.On("Set", mock.Anything, "subscription:1", stored, time.Hour).Return(nil).Once()

		svc := NewService(repo, cache, time.Hour, newNoopLogger())
		got, err := svc.Get(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, stored, got)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("cache error falls back to repository", func(t *testing.T) {
		repo := new(RepoMock)
		cache := new(CacheMock)
		cache.On("Get", mock.Anything, "subscription:1", mock.Anything).Return(false, errors.New("redis down")).Once()
		repo.On("GetSubscription", mock.Anything, int64(1)).Return(stored, nil).Once()
		cache.On("Set", mock.Anything, "subscription:1", stored, time.Hour).Return(nil).Once()

		svc := NewService(repo, cache, time.Hour, newNoopLogger())
		got, err := svc.Get(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, stored, got)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetSubscription", mock.Anything, int64(9)).
			Return(nil, repository.ErrNotFound).Once()

		svc := NewService(repo, nil, time.Hour, newNoopLogger())
		got, err := svc.Get(context.Background(), 9)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("store error is propagated", func(t *testing.T) {
		storeErr := errors.New("connection refused")
		repo := new(RepoMock)
		repo.On("GetSubscription", mock.Anything, int64(9)).Return(nil, storeErr).Once()

		svc := NewService(repo, nil, time.Hour, newNoopLogger())
		_, err := svc.Get(context.Background(), 9)
		assert.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestService_Renew(t *testing.T) {
	newEnd := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		id         int64
		req        models.RenewRequest
		setupMocks func(r *RepoMock, c *CacheMock)
		wantErr    error
	}{
		{
			name: "expired record becomes active",
			id:   1,
			req:  models.RenewRequest{EndDate: "2024-03-01"},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				current := &models.Subscription{ID: 1, StartDate: jan1, EndDate: jan31, Status: models.StatusExpired}
				renewed := &models.Subscription{ID: 1, StartDate: jan1, EndDate: newEnd, Status: models.StatusActive}
				r.On("GetSubscription", mock.Anything, int64(1)).Return(current, nil).Once()
				r.On("UpdateSubscription", mock.Anything, int64(1), mock.MatchedBy(func(u models.SubscriptionUpdate) bool {
					return u.EndDate != nil && u.EndDate.Equal(newEnd) &&
						u.Status != nil && *u.Status == models.StatusActive
				})).Return(renewed, nil).Once()
				c.On("Set", mock.Anything, "subscription:1", renewed, time.Hour).Return(nil).Once()
			},
		},
		{
			name: "renewing into the past is allowed",
			id:   2,
			req:  models.RenewRequest{EndDate: "2024-01-15"},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				current := &models.Subscription{ID: 2, StartDate: jan1, EndDate: jan31, Status: models.StatusActive}
				renewed := &models.Subscription{ID: 2, StartDate: jan1, Status: models.StatusActive}
				r.On("GetSubscription", mock.Anything, int64(2)).Return(current, nil).Once()
				r.On("UpdateSubscription", mock.Anything, int64(2), mock.Anything).Return(renewed, nil).Once()
				c.On("Set", mock.Anything, "subscription:2", renewed, time.Hour).Return(nil).Once()
			},
		},
		{
			name: "nonexistent id",
			id:   404,
			req:  models.RenewRequest{EndDate: "2024-03-01"},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetSubscription", mock.Anything, int64(404)).Return(nil, repository.ErrNotFound).Once()
			},
			wantErr: ErrNotFound,
		},
		{
			name: "deleted between read and update",
			id:   5,
			req:  models.RenewRequest{EndDate: "2024-03-01"},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				current := &models.Subscription{ID: 5, StartDate: jan1, EndDate: jan31}
				r.On("GetSubscription", mock.Anything, int64(5)).Return(current, nil).Once()
				r.On("UpdateSubscription", mock.Anything, int64(5), mock.Anything).
					Return(nil, repository.ErrNotFound).Once()
			},
			wantErr: ErrNotFound,
		},
		{
			name: "end date not after start date",
			id:   3,
			req:  models.RenewRequest{EndDate: "2024-01-01"},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				current := &models.Subscription{ID: 3, StartDate: jan1, EndDate: jan31}
				r.On("GetSubscription", mock.Anything, int64(3)).Return(current, nil).Once()
			},
			wantErr: ErrValidation,
		},
		{
			name: "malformed end date",
			id:   4,
			req:  models.RenewRequest{EndDate: "tomorrow"},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				current := &models.Subscription{ID: 4, StartDate: jan1, EndDate: jan31}
				r.On("GetSubscription", mock.Anything, int64(4)).Return(current, nil).Once()
			},
			wantErr: ErrValidation,
		},
		{
			name: "nonexistent id with malformed end date",
			id:   999,
			req:  models.RenewRequest{EndDate: "not-a-date"},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetSubscription", mock.Anything, int64(999)).Return(nil, repository.ErrNotFound).Once()
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			svc := NewService(repo, cache, time.Hour, newNoopLogger())

			tt.setupMocks(repo, cache)

			got, err := svc.Renew(context.Background(), tt.id, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.StatusActive, got.Status)
			}

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestService_Delete(t *testing.T) {
	tests := []struct {
		name       string
		id         int64
		setupMocks func(r *RepoMock, c *CacheMock)
		wantErr    error
	}{
		{
			name: "success delete",
			id:   1,
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("DeleteSubscription", mock.Anything, int64(1)).Return(nil).Once()
				c.On("Invalidate", mock.Anything, "subscription:1").Return(nil).Once()
			},
		},
		{
			name: "cache invalidate error but proceed",
			id:   2,
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("DeleteSubscription", mock.Anything, int64(2)).Return(nil).Once()
				c.On("Invalidate", mock.Anything, "subscription:2").Return(errors.New("cache fail")).Once()
			},
		},
		{
			name: "not found",
			id:   3,
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("DeleteSubscription", mock.Anything, int64(3)).Return(repository.ErrNotFound).Once()
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			svc := NewService(repo, cache, time.Hour, newNoopLogger())

			tt.setupMocks(repo, cache)

			err := svc.Delete(context.Background(), tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}
