package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/config"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestSMTPMailer_Send(t *testing.T) {
	t.Parallel()

	fd := &fakeDialer{}
	m := &SMTPMailer{from: "no-reply@agencyhub.local", dialer: fd}

	err := m.Send(context.Background(), Message{To: "new@example.com", Subject: "Join Acme", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(fd.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fd.sent))
	}
	if got := fd.sent[0].GetHeader("To"); len(got) != 1 || got[0] != "new@example.com" {
		t.Errorf("To header = %v", got)
	}

	var buf bytes.Buffer
	if _, err := fd.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "Subject: Join Acme") {
		t.Errorf("rendered message missing subject:\n%s", buf.String())
	}
}

func TestSMTPMailer_SendErrors(t *testing.T) {
	t.Parallel()

	fd := &fakeDialer{err: errors.New("connection refused")}
	m := &SMTPMailer{from: "x@y", dialer: fd}
	if err := m.Send(context.Background(), Message{To: "a@b"}); err == nil {
		t.Error("expected dial error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, Message{To: "a@b"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	if _, ok := FromConfig(config.Config{}, zap.NewNop()).(*LogMailer); !ok {
		t.Error("expected LogMailer without SMTP host")
	}
	if _, ok := FromConfig(config.Config{SMTPHost: "smtp.local", SMTPPort: 25}, zap.NewNop()).(*SMTPMailer); !ok {
		t.Error("expected SMTPMailer with SMTP host")
	}
	if err := NewLogMailer(zap.NewNop()).Send(context.Background(), Message{To: "a@b"}); err != nil {
		t.Errorf("LogMailer.Send() error = %v", err)
	}
}
