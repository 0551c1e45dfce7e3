// Package notify delivers outbound user messages (recovery codes today).
//
// Transports are interchangeable behind Sender. Bodies may contain secrets, so
// no implementation logs them.
package notify

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidMessage = errors.New("notify: invalid message")
	ErrConfig         = errors.New("notify: invalid config")
)

// Message is a single plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// validate rejects empty recipients and header injection.
func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrInvalidMessage
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return ErrInvalidMessage
	}
	return nil
}
