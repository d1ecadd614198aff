package email

import (
	"context"
	"crypto/tls"
	"errors"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"Mailwright/internal/errs"
)

// Outbound is a single rendered message ready for the relay.
type Outbound struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Dialer is the part of gomail.Dialer the sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Sender struct {
	Host string
	Port int
	From string

	dialer Dialer
	log    *zap.Logger
}

// Options configures the relay connection.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// SSL selects implicit TLS. When false gomail upgrades with STARTTLS.
	SSL bool
}

func NewSender(opts Options, log *zap.Logger) *Sender {
	d := gomail.NewDialer(opts.Host, opts.Port, opts.User, opts.Password)
	d.SSL = opts.SSL || opts.Port == 465
	d.TLSConfig = &tls.Config{ServerName: opts.Host, MinVersion: tls.VersionTLS12}

	return &Sender{
		Host:   opts.Host,
		Port:   opts.Port,
		From:   opts.From,
		dialer: d,
		log:    log,
	}
}

// newSenderWithDialer builds a sender over a dialer other than gomail's.
func newSenderWithDialer(from string, d Dialer, log *zap.Logger) *Sender {
	return &Sender{From: from, dialer: d, log: log}
}

// Send opens a connection to the relay and transmits one message. It does
// not retry; any failure comes back as *errs.TransportError.
func (s *Sender) Send(ctx context.Context, out Outbound) error {
	if err := ctx.Err(); err != nil {
		return &errs.TransportError{Op: "send", Err: err}
	}

	m, err := s.message(out)
	if err != nil {
		return &errs.TransportError{Op: "build message", Err: err}
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.Warn("smtp send failed",
			zap.String("host", s.Host),
			zap.Int("port", s.Port),
			zap.String("to", out.To),
			zap.Error(err),
		)
		return &errs.TransportError{Op: "smtp send", Err: err}
	}

	s.log.Debug("smtp message accepted",
		zap.String("to", out.To),
		zap.String("subject", out.Subject),
	)
	return nil
}

// message builds a multipart/alternative message when both bodies are set.
func (s *Sender) message(out Outbound) (*gomail.Message, error) {
	from := out.From
	if from == "" {
		from = s.From
	}
	if from == "" {
		return nil, errors.New("missing sender address")
	}
	if out.To == "" {
		return nil, errors.New("missing recipient address")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", out.To)
	m.SetHeader("Subject", out.Subject)

	switch {
	case out.Text != "" && out.HTML != "":
		m.SetBody("text/plain", out.Text)
		m.AddAlternative("text/html", out.HTML)
	case out.HTML != "":
		m.SetBody("text/html", out.HTML)
	default:
		m.SetBody("text/plain", out.Text)
	}

	return m, nil
}
