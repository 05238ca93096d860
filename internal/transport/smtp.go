package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// SMTP relays messages through a configured smarthost. All recipients (to,
// cc and bcc) become RCPT TO envelope addresses; bcc recipients appear only
// in the envelope, never in the payload headers.
type SMTP struct {
	addr    string
	helo    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSMTP creates an SMTP transport for the configured smarthost.
func NewSMTP(cfg Config) *SMTP {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 25
	}
	helo := cfg.Helo
	if helo == "" {
		helo = "localhost"
	}
	return &SMTP{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		helo:    helo,
		timeout: cfg.SendTimeout(),
		logger:  slog.Default().With("component", "smtp-transport", "addr", net.JoinHostPort(host, strconv.Itoa(port))),
	}
}

// Send performs one SMTP conversation for the message.
func (s *SMTP) Send(ctx context.Context, from string, to, cc, bcc []string, data []byte) error {
	recipients := make([]string, 0, len(to)+len(cc)+len(bcc))
	recipients = append(recipients, to...)
	recipients = append(recipients, cc...)
	recipients = append(recipients, bcc...)
	if len(recipients) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	// The smtp client has no context support past dialing; a deadline on the
	// connection bounds every subsequent command.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO failed for %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.logger.Warn("QUIT command failed", "error", err)
	}

	s.logger.Info("message relayed",
		"from", from,
		"recipients", len(recipients),
		"size", len(data))
	return nil
}

// connect dials the smarthost and completes the greeting.
func (s *SMTP) connect(ctx context.Context) (*smtp.Client, net.Conn, error) {
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", s.addr, err)
	}

	host, _, _ := net.SplitHostPort(s.addr)
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if err := client.Hello(s.helo); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("HELLO command failed: %w", err)
	}
	return client, conn, nil
}

// Close is a no-op; connections are per-send.
func (s *SMTP) Close() error { return nil }
