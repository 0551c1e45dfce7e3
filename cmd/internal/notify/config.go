package notify

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
	TransportAMQP = "amqp"
)

// Config selects and configures the delivery transport.
type Config struct {
	Transport string
	SMTP      SMTPConfig
	AMQPURL   string
	AMQPQueue string
}

func DefaultConfig() Config {
	return Config{
		Transport: TransportLog,
		SMTP: SMTPConfig{
			Port:        465,
			ImplicitTLS: true,
			Timeout:     10 * time.Second,
		},
		AMQPQueue: "ava.email",
	}
}

// LoadConfigFromEnv reads:
//   - AVA_NOTIFY_TRANSPORT (log/smtp/amqp)
//   - AVA_SMTP_HOST, AVA_SMTP_PORT, AVA_SMTP_USERNAME, AVA_SMTP_PASSWORD,
//     AVA_SMTP_FROM, AVA_SMTP_IMPLICIT_TLS, AVA_SMTP_TIMEOUT
//   - AVA_AMQP_URL, AVA_AMQP_QUEUE
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("AVA_NOTIFY_TRANSPORT"))); v != "" {
		cfg.Transport = v
	}

	cfg.SMTP.Host = strings.TrimSpace(os.Getenv("AVA_SMTP_HOST"))
	cfg.SMTP.Username = strings.TrimSpace(os.Getenv("AVA_SMTP_USERNAME"))
	cfg.SMTP.Password = os.Getenv("AVA_SMTP_PASSWORD")
	cfg.SMTP.From = strings.TrimSpace(os.Getenv("AVA_SMTP_FROM"))
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	if v := strings.TrimSpace(os.Getenv("AVA_SMTP_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("%w: AVA_SMTP_PORT", ErrConfig)
		}
		cfg.SMTP.Port = n
	}
	if v := strings.TrimSpace(os.Getenv("AVA_SMTP_IMPLICIT_TLS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: AVA_SMTP_IMPLICIT_TLS", ErrConfig)
		}
		cfg.SMTP.ImplicitTLS = b
	}
	if v := strings.TrimSpace(os.Getenv("AVA_SMTP_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: AVA_SMTP_TIMEOUT", ErrConfig)
		}
		cfg.SMTP.Timeout = d
	}

	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AVA_AMQP_URL"))
	if v := strings.TrimSpace(os.Getenv("AVA_AMQP_QUEUE")); v != "" {
		cfg.AMQPQueue = v
	}

	switch cfg.Transport {
	case TransportLog, TransportSMTP, TransportAMQP:
	default:
		return Config{}, fmt.Errorf("%w: unsupported AVA_NOTIFY_TRANSPORT %q", ErrConfig, cfg.Transport)
	}
	return cfg, nil
}

// New builds the configured Sender wrapped with delivery counters (when
// deliveries is non-nil). The returned closer releases transport resources.
func New(cfg Config, logger *slog.Logger, deliveries *prometheus.CounterVec) (Sender, io.Closer, error) {
	var (
		s      Sender
		closer io.Closer = nopCloser{}
	)

	switch cfg.Transport {
	case TransportLog, "":
		s = LogSender{Logger: logger}
	case TransportSMTP:
		smtpSender, err := NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		s = smtpSender
	case TransportAMQP:
		amqpSender, err := DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		s, closer = amqpSender, amqpSender
	default:
		return nil, nil, fmt.Errorf("%w: unsupported transport %q", ErrConfig, cfg.Transport)
	}

	transport := cfg.Transport
	if transport == "" {
		transport = TransportLog
	}
	return Instrumented{Next: s, Transport: transport, Counter: deliveries}, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
