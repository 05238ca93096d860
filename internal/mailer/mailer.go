// Package mailer is the submission surface: it composes an RFC 2822 payload,
// persists the message through the store and content backend, and enqueues it
// for delivery. It is a thin collaborator of the core; everything after
// enqueue belongs to the delivery engine.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/busybox42/mailroom/internal/delivery"
	"github.com/busybox42/mailroom/internal/queue"
	"github.com/busybox42/mailroom/internal/storage"
)

// Config holds submission settings.
type Config struct {
	DefaultFrom string `toml:"default_from"`

	// TestMode redirects every submission to TestEmail, dropping cc and bcc
	// and recording the original recipients in a payload header, so a
	// staging deployment can exercise real delivery without mailing users.
	TestMode  bool   `toml:"test_mode"`
	TestEmail string `toml:"test_email"`
}

// testOriginalHeader carries the pre-redirect recipients in test mode.
const testOriginalHeader = "X-Mailroom-Test-Original"

// Mailer queues outgoing email.
type Mailer struct {
	store   *queue.Store
	content storage.Backend
	engine  *delivery.Engine
	config  Config
	logger  *slog.Logger
}

// New creates a mailer.
func New(store *queue.Store, content storage.Backend, engine *delivery.Engine, config Config) *Mailer {
	return &Mailer{
		store:   store,
		content: content,
		engine:  engine,
		config:  config,
		logger:  slog.Default().With("component", "mailer"),
	}
}

// Email is a submission request.
type Email struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
}

// Queue persists the email and enqueues it for delivery, returning the
// stored message. The message is created even when enqueueing fails; the
// caller can re-enqueue it later.
func (m *Mailer) Queue(ctx context.Context, email Email) (*queue.Message, error) {
	if email.From == "" {
		email.From = m.config.DefaultFrom
	}
	if email.From == "" {
		return nil, fmt.Errorf("email has no from address")
	}
	if len(email.To)+len(email.Cc)+len(email.Bcc) == 0 {
		return nil, fmt.Errorf("email has no recipients")
	}

	var originalRecipients []string
	if m.config.TestMode && m.config.TestEmail != "" {
		originalRecipients = append(append(append([]string{}, email.To...), email.Cc...), email.Bcc...)
		email.To = []string{m.config.TestEmail}
		email.Cc = nil
		email.Bcc = nil
	}

	msg := &queue.Message{
		ID:          uuid.New().String(),
		FromAddress: email.From,
		To:          email.To,
		Cc:          email.Cc,
		Bcc:         email.Bcc,
	}

	payload := encodeMessage(msg.ID, email, originalRecipients)
	if err := m.content.Set(ctx, msg, payload); err != nil {
		return nil, fmt.Errorf("failed to store message content: %w", err)
	}
	if err := m.store.Create(ctx, msg); err != nil {
		return nil, err
	}

	if _, err := m.engine.Enqueue(ctx, msg.ID, "Enqueued at submission."); err != nil {
		m.logger.Error("failed to enqueue submitted message",
			"message_id", msg.ID, "error", err)
		return msg, err
	}
	return msg, nil
}

// encodeMessage renders a minimal RFC 2822 payload. Bcc recipients stay out
// of the headers; they only ever exist in the envelope.
func encodeMessage(id string, email Email, originalRecipients []string) []byte {
	var b bytes.Buffer
	writeHeader := func(key, value string) {
		fmt.Fprintf(&b, "%s: %s\r\n", key, value)
	}

	writeHeader("From", email.From)
	writeHeader("To", strings.Join(email.To, ", "))
	if len(email.Cc) > 0 {
		writeHeader("Cc", strings.Join(email.Cc, ", "))
	}
	writeHeader("Subject", email.Subject)
	writeHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader("Message-ID", fmt.Sprintf("<%s@mailroom>", id))
	if len(originalRecipients) > 0 {
		writeHeader(testOriginalHeader, strings.Join(originalRecipients, ", "))
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(email.Body)
	b.WriteString("\r\n")
	return b.Bytes()
}
