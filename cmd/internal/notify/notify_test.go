package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingPublisher struct {
	exchange, key string
	msgs          []amqp.Publishing
	err           error
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.exchange, p.key = exchange, key
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestMessage_ValidateRejectsHeaderInjection(t *testing.T) {
	t.Parallel()

	cases := []Message{
		{To: ""},
		{To: "   "},
		{To: "a@example.com\r\nBcc: b@example.com"},
		{To: "a@example.com", Subject: "hi\nBcc: b@example.com"},
	}
	for _, m := range cases {
		if err := (LogSender{}).Send(context.Background(), m); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("Send(%q) err=%v want ErrInvalidMessage", m.To, err)
		}
	}
}

func TestAMQPSender_PublishesPersistentJSON(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	s := newAMQPSender(pub, "ava.email")

	msg := Message{To: "vasya@example.com", Subject: "Recovery", Body: "code: ABC123"}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages want 1", len(pub.msgs))
	}
	if pub.exchange != "" || pub.key != "ava.email" {
		t.Fatalf("routing exchange=%q key=%q", pub.exchange, pub.key)
	}
	got := pub.msgs[0]
	if got.DeliveryMode != amqp.Persistent || got.ContentType != "application/json" {
		t.Fatalf("unexpected publishing %+v", got)
	}

	var job emailJob
	if err := json.Unmarshal(got.Body, &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.Message != msg || job.QueuedAt.IsZero() {
		t.Fatalf("job=%+v", job)
	}
}

func TestAMQPSender_PublishErrorIsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("channel closed")
	s := newAMQPSender(&recordingPublisher{err: boom}, "q")
	if err := s.Send(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("err=%v want wrapped %v", err, boom)
	}
}

func TestInstrumented_CountsResults(t *testing.T) {
	t.Parallel()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "deliveries_total"}, []string{"transport", "result"})

	fail := true
	s := Instrumented{
		Next: SenderFunc(func(context.Context, Message) error {
			if fail {
				return errors.New("down")
			}
			return nil
		}),
		Transport: "smtp",
		Counter:   counter,
	}

	_ = s.Send(context.Background(), Message{To: "a@example.com"})
	fail = false
	_ = s.Send(context.Background(), Message{To: "a@example.com"})
	_ = s.Send(context.Background(), Message{To: "a@example.com"})

	if got := testutil.ToFloat64(counter.WithLabelValues("smtp", "error")); got != 1 {
		t.Fatalf("error=%v want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("smtp", "ok")); got != 2 {
		t.Fatalf("ok=%v want 2", got)
	}
}

func TestBuildMIME(t *testing.T) {
	t.Parallel()

	raw := string(buildMIME("noreply@example.com", Message{To: "a@example.com", Subject: "Восстановление", Body: "code"}))
	if !strings.HasPrefix(raw, "From: noreply@example.com\r\nTo: a@example.com\r\nSubject: =?utf-8?q?") {
		t.Fatalf("unexpected headers:\n%s", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\ncode") {
		t.Fatalf("unexpected body:\n%s", raw)
	}
}

func TestNewSMTPSender_RequiresHostPortFrom(t *testing.T) {
	t.Parallel()

	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 465}); !errors.Is(err, ErrConfig) {
		t.Fatalf("err=%v want ErrConfig", err)
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 465, From: "a@example.com"}); err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AVA_NOTIFY_TRANSPORT", "SMTP")
	t.Setenv("AVA_SMTP_HOST", "smtp.yandex.ru")
	t.Setenv("AVA_SMTP_USERNAME", "noreply@example.com")
	t.Setenv("AVA_SMTP_PORT", "587")
	t.Setenv("AVA_SMTP_IMPLICIT_TLS", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Transport != TransportSMTP || cfg.SMTP.Port != 587 || cfg.SMTP.ImplicitTLS {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.SMTP.From != "noreply@example.com" {
		t.Fatalf("From should default to username, got %q", cfg.SMTP.From)
	}
}

func TestLoadConfigFromEnv_RejectsUnknownTransport(t *testing.T) {
	t.Setenv("AVA_NOTIFY_TRANSPORT", "carrier-pigeon")
	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("err=%v want ErrConfig", err)
	}
}

func TestNew_LogTransport(t *testing.T) {
	t.Parallel()

	s, closer, err := New(DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()
	if err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
