package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"Mailwright/internal/email"
	"Mailwright/internal/metrics"
	"Mailwright/internal/models"
	"Mailwright/internal/render"
)

type Resolver interface {
	Resolve(ctx context.Context, templateType models.TemplateType) (*models.InUseTemplate, error)
}

// Ledger records rendered messages and their delivery events.
type Ledger interface {
	CreateMessage(ctx context.Context, m *models.EmailMessage) (string, error)
	UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus) error
	AppendSendLog(ctx context.Context, l *models.EmailSendLog) error
}

type Transport interface {
	Send(ctx context.Context, out email.Outbound) error
}

// Pipeline runs resolve, render, persist, send and log for one job.
type Pipeline struct {
	Resolver  Resolver
	Renderer  *render.Renderer
	Ledger    Ledger
	Transport Transport
	From      string
	Log       *zap.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// SendVerifyEmail delivers the in-use VERIFY_EMAIL template to the job's
// address.
func (p *Pipeline) SendVerifyEmail(ctx context.Context, job models.VerifyEmailJob) (*models.EmailMessage, error) {
	return p.Send(ctx, models.TemplateVerifyEmail, job.Email, job.Fields())
}

// Send renders the in-use template of templateType against fields and
// delivers it to recipient.
//
// The returned error is non-nil only when the job could not be handled:
// no in-use template (errs.ErrNotFound) or a store failure. A relay failure
// is recorded as FAILURE with a SEND_FAILURE log and does not produce an
// error.
func (p *Pipeline) Send(
	ctx context.Context,
	templateType models.TemplateType,
	recipient string,
	fields map[string]string,
) (*models.EmailMessage, error) {

	resolved, err := p.Resolver.Resolve(ctx, templateType)
	if err != nil {
		return nil, err
	}

	vars := render.Variables(resolved.Placeholders, fields)
	subject, body := p.Renderer.Render(resolved.Template, vars)

	// ----------------------------
	// Persist before any network call
	// ----------------------------
	msg := &models.EmailMessage{
		Sender:     p.From,
		Recipient:  recipient,
		TemplateID: resolved.Template.ID,
		Subject:    subject,
		Content:    body,
	}
	if _, err := p.Ledger.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	log := p.Log.With(
		zap.String("message_id", msg.ID),
		zap.String("template_id", msg.TemplateID),
		zap.String("to", recipient),
	)

	// ----------------------------
	// Send
	// ----------------------------
	text, html := email.Bodies(body)
	sendErr := p.Transport.Send(ctx, email.Outbound{
		From:    p.From,
		To:      recipient,
		Subject: subject,
		Text:    text,
		HTML:    html,
	})

	status, logType := models.StatusSuccess, models.LogSendSuccess
	if sendErr != nil {
		status, logType = models.StatusFailure, models.LogSendFailure
	}

	if err := p.Ledger.UpdateMessageStatus(ctx, msg.ID, status); err != nil {
		return msg, err
	}
	msg.Status = status

	if err := p.Ledger.AppendSendLog(ctx, &models.EmailSendLog{
		EmailMessageID: msg.ID,
		LogType:        logType,
		SentAt:         p.now(),
		RetryCount:     0,
	}); err != nil {
		return msg, err
	}

	if sendErr != nil {
		log.Error("email send failed", zap.Error(sendErr))
		metrics.EmailFailures.Inc()
		return msg, nil
	}

	log.Info("email sent successfully")
	metrics.EmailsSent.Inc()
	return msg, nil
}
