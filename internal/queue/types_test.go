package queue

import "testing"

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusCreated, "created"},
		{StatusQueued, "queued"},
		{StatusInProcess, "in_process"},
		{StatusSent, "sent"},
		{StatusFailed, "failed"},
		{StatusBlacklisted, "blacklisted"},
		{StatusDiscarded, "discarded"},
		{Status(42), "status(42)"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.status), got, tt.want)
		}
	}
}

func TestStatusSendable(t *testing.T) {
	sendable := map[Status]bool{
		StatusCreated:     true,
		StatusQueued:      false,
		StatusInProcess:   false,
		StatusSent:        false,
		StatusFailed:      true,
		StatusBlacklisted: true,
		StatusDiscarded:   true,
	}
	for status, want := range sendable {
		if got := status.Sendable(); got != want {
			t.Errorf("%s.Sendable() = %v, want %v", status, got, want)
		}
	}
}

func TestStatusRetryable(t *testing.T) {
	for _, status := range []Status{StatusFailed, StatusBlacklisted, StatusDiscarded} {
		if !status.Retryable() {
			t.Errorf("Expected %s to be retryable", status)
		}
	}
	for _, status := range []Status{StatusCreated, StatusQueued, StatusInProcess, StatusSent} {
		if status.Retryable() {
			t.Errorf("Expected %s not to be retryable", status)
		}
	}
}

func TestMessageRecipients(t *testing.T) {
	msg := &Message{
		To:  []string{"a@example.com"},
		Cc:  []string{"b@example.com"},
		Bcc: []string{"c@example.com"},
	}
	got := msg.Recipients()
	want := []string{"a@example.com", "b@example.com", "c@example.com"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d recipients, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Recipient %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := (&Message{}).Recipients(); len(got) != 0 {
		t.Errorf("Expected no recipients, got %v", got)
	}
}
