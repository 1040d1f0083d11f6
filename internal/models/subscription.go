// Package models содержит доменные структуры, описывающие подписку,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import "time"

// Status состояние подписки.
type Status string

const (
	// StatusActive: подписка действует. Назначается при создании и при каждом продлении.
	StatusActive Status = "active"
	// StatusExpired: срок подписки истёк. Назначается только обходом подписок.
	StatusExpired Status = "expired"
)

// Subscription представляет собой основную модель подписки,
// используемую в бизнес-логике, хранилище и ответах API.
type Subscription struct {
	ID        int64     `json:"id"`
	UserEmail string    `json:"user_email"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubscriptionUpdate описывает частичное обновление подписки.
// Поля со значением nil не изменяются.
type SubscriptionUpdate struct {
	EndDate *time.Time
	Status  *Status
}

// CreateRequest используется для приёма данных из JSON-запроса на создание подписки.
// Даты приходят строками, чтобы их можно было валидировать и парсить вручную.
type CreateRequest struct {
	UserEmail string `json:"user_email" validate:"required,email" example:"user@example.com"`
	StartDate string `json:"start_date" validate:"required" example:"2024-01-01T00:00:00Z"`
	EndDate   string `json:"end_date" validate:"required" example:"2024-01-31T00:00:00Z"`
}

// RenewRequest используется для приёма новой даты окончания подписки.
type RenewRequest struct {
	EndDate string `json:"end_date" validate:"required" example:"2024-03-01T00:00:00Z"`
}
