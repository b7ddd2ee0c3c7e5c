// Package notify emails report owners when an export finishes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/queue"
)

var ErrNoRecipient = errors.New("job has no notification address")

type Config struct {
	APIKey      string
	FromName    string
	FromAddress string
}

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type Mailer struct {
	client sender
	from   *mail.Email
	logger *zap.Logger
}

// New returns a SendGrid mailer, or nil when no API key is configured.
func New(cfg Config, logger *zap.Logger) *Mailer {
	if cfg.APIKey == "" {
		logger.Info("email notifications disabled: no API key")
		return nil
	}
	return &Mailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

// ReportReady tells the job's notification address where its export was written.
func (m *Mailer) ReportReady(ctx context.Context, job *queue.Job) error {
	if job.NotifyEmail == "" {
		return ErrNoRecipient
	}

	subject := fmt.Sprintf("Relatório %s disponível", job.Report)
	body := fmt.Sprintf("O relatório %s (%s) foi gerado: %s", job.Report, job.Format, filepath.Base(job.OutputPath))

	to := mail.NewEmail("", job.NotifyEmail)
	email := mail.NewSingleEmail(m.from, subject, to, body, body)

	response, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	m.logger.Info("report notification sent",
		zap.String("job_id", job.ID),
		zap.String("to", job.NotifyEmail),
		zap.Int("status", response.StatusCode),
	)
	return nil
}
