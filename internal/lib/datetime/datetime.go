// Package datetime содержит вспомогательные функции для работы с датами подписок.
package datetime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout формат даты окончания подписки в письмах.
const DateLayout = "2006-01-02"

// ErrInvalidFormat возвращается, если строку не удалось разобрать ни по одному из форматов.
var ErrInvalidFormat = errors.New("invalid datetime format")

// Форматы перебираются по порядку. Даты без часового пояса считаются UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Parse разбирает дату в формате RFC 3339, ISO 8601 без часового пояса или YYYY-MM-DD.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, value)
}

// DaysUntil считает количество полных суток от now до end.
// Для end <= now возвращает 0.
func DaysUntil(now, end time.Time) int {
	if !end.After(now) {
		return 0
	}
	return int(end.Sub(now) / (24 * time.Hour))
}

// FormatDate форматирует дату для подстановки в письмо.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
