// Package sender рендерит письма по шаблонам и отправляет их через SMTP.
package sender

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/smtp"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Идентификаторы шаблонов писем.
const (
	TemplatePostExpiry = "post-expiry"
	TemplatePreExpiry  = "pre-expiry"
)

// ErrTemplate шаблон не найден или не может быть отрендерен.
// Это ошибка конфигурации, а не сбой доставки.
var ErrTemplate = errors.New("email template error")

//go:embed templates/*.html
var templatesFS embed.FS

// Service отправляет письма о состоянии подписки.
type Service struct {
	transport smtp.TransportInterface
	templates *template.Template
	log       *slog.Logger
}

// NewService создает новый экземпляр Service и разбирает встроенные шаблоны.
func NewService(transport smtp.TransportInterface, log *slog.Logger) (*Service, error) {
	const op = "services.sender.NewService"

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTemplate, err)
	}
	return &Service{
		transport: transport,
		templates: tmpl,
		log:       log,
	}, nil
}

// Send рендерит шаблон templateID и отправляет письмо на адрес to.
// Возвращает true, если письмо принято сервером. Если учетные данные SMTP
// не заданы или доставка не удалась, возвращает false без ошибки.
// Ошибка возвращается только для проблем с шаблоном.
func (s *Service) Send(ctx context.Context, to, templateID, subject string, data models.NotificationData) (bool, error) {
	const op = "services.sender.Send"
	log := s.log.With(
		slog.String("to", to),
		slog.String("template", templateID),
	)

	if !s.transport.Configured() {
		log.Warn("smtp not configured, email would have been sent", slog.String("subject", subject))
		return false, nil
	}

	body, err := s.render(templateID, data)
	if err != nil {
		log.Error("failed to render email template", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.deliver(ctx, to, subject, body); err != nil {
		log.Error("failed to send email", sl.Err(err))
		return false, nil
	}

	log.Info("email sent successfully")
	return true, nil
}

func (s *Service) render(templateID string, data models.NotificationData) (string, error) {
	tmpl := s.templates.Lookup(templateID + ".html")
	if tmpl == nil {
		return "", fmt.Errorf("%w: template not found: %s", ErrTemplate, templateID)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemplate, err)
	}
	return buf.String(), nil
}

func (s *Service) deliver(ctx context.Context, to, subject, body string) error {
	from := s.transport.From()

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	client, err := s.transport.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := msg.WriteTo(wc); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.log.Warn("failed to quit smtp client", sl.Err(err))
	}
	return nil
}
