// Package smtp предоставляет интерфейсы и транспорт для работы с SMTP.
package smtp

import (
	"context"
	"io"
)

// Client интерфейс для SMTP клиента.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface интерфейс для SMTP транспорта.
type TransportInterface interface {
	// Connect устанавливает авторизованное соединение с сервером.
	Connect(ctx context.Context) (Client, error)
	// Configured сообщает, заданы ли учетные данные.
	Configured() bool
	// From адрес отправителя.
	From() string
}
