package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const userAgent = "Hiretrack-Notify/1.0"

// Message is what a transport delivers
type Message struct {
	TaskID  string `json:"task_id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"message"`
}

func messageFor(t *Task) Message {
	return Message{TaskID: t.ID, To: t.Recipient, Subject: t.Subject, Body: t.Message}
}

// Transport sends one message. Failures are marked ErrDelivery, and
// additionally ErrPermanent when a retry cannot succeed.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Transport kinds
const (
	TransportLog     = "log"
	TransportSMTP    = "smtp"
	TransportWebhook = "webhook"
)

// TransportConfig selects and configures a transport
type TransportConfig struct {
	Kind string

	SMTPAddr     string // host:port
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	WebhookURL     string
	WebhookTimeout time.Duration

	Logger *slog.Logger
}

// NewTransport builds the configured transport
func NewTransport(cfg TransportConfig) (Transport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Kind) {
	case "", TransportLog:
		return NewLogTransport(logger), nil
	case TransportSMTP:
		if cfg.SMTPAddr == "" || cfg.SMTPFrom == "" {
			return nil, errors.New("smtp transport needs an address and a from address")
		}
		return NewSMTPTransport(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom), nil
	case TransportWebhook:
		if cfg.WebhookURL == "" {
			return nil, errors.New("webhook transport needs a url")
		}
		return NewWebhookTransport(cfg.WebhookURL, cfg.WebhookTimeout), nil
	default:
		return nil, errors.Newf("unknown transport %q", cfg.Kind)
	}
}

// LogTransport writes each message to the log instead of sending it
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a log transport
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Name() string { return TransportLog }

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("sending email",
		slog.String("task_id", msg.TaskID),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("message", msg.Body),
	)
	return nil
}

// SMTPTransport delivers through an SMTP relay with PLAIN auth
type SMTPTransport struct {
	addr     string
	host     string
	username string
	password string
	from     string
}

// NewSMTPTransport creates an SMTP transport
func NewSMTPTransport(addr, username, password, from string) *SMTPTransport {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return &SMTPTransport{addr: addr, host: host, username: username, password: password, from: from}
}

func (t *SMTPTransport) Name() string { return TransportSMTP }

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return deliveryFailed(err, "smtp dial")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		_ = conn.Close()
		return classifySMTP(err, "smtp hello")
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			return classifySMTP(err, "smtp starttls")
		}
	}
	if t.username != "" {
		if err := client.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
			return Permanent(deliveryFailed(err, "smtp auth"))
		}
	}
	if err := client.Mail(t.from); err != nil {
		return classifySMTP(err, "smtp mail from")
	}
	if err := client.Rcpt(msg.To); err != nil {
		return classifySMTP(err, "smtp rcpt to")
	}

	w, err := client.Data()
	if err != nil {
		return classifySMTP(err, "smtp data")
	}
	if _, err := w.Write(buildMIME(t.from, msg)); err != nil {
		_ = w.Close()
		return deliveryFailed(err, "smtp write")
	}
	if err := w.Close(); err != nil {
		return classifySMTP(err, "smtp end data")
	}
	return classifySMTP(client.Quit(), "smtp quit")
}

// headerLine folds a value onto one line so it cannot start a new header
var headerLine = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func buildMIME(from string, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", headerLine.Replace(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerLine.Replace(msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", headerLine.Replace(msg.Subject))
	fmt.Fprintf(&b, "X-Hiretrack-Task: %s\r\n", headerLine.Replace(msg.TaskID))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	body := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(msg.Body)
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

// classifySMTP treats 5xx replies as permanent and everything else as transient
func classifySMTP(err error, op string) error {
	if err == nil {
		return nil
	}
	wrapped := deliveryFailed(err, op)
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return Permanent(wrapped)
	}
	return wrapped
}

// WebhookTransport POSTs each message as JSON
type WebhookTransport struct {
	endpoint string
	client   *http.Client
}

// NewWebhookTransport creates a webhook transport
func NewWebhookTransport(endpoint string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *WebhookTransport) Name() string { return TransportWebhook }

func (t *WebhookTransport) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Permanent(deliveryFailed(err, "encode webhook body"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Permanent(deliveryFailed(err, "build webhook request"))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.TaskID)

	resp, err := t.client.Do(req)
	if err != nil {
		return deliveryFailed(err, "send webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		failure := deliveryFailed(
			errors.Newf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			"send webhook",
		)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Permanent(failure)
		}
		return failure
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
