package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented counts deliveries per transport and result.
type Instrumented struct {
	Next      Sender
	Transport string
	Counter   *prometheus.CounterVec
}

func (s Instrumented) Send(ctx context.Context, msg Message) error {
	err := s.Next.Send(ctx, msg)
	if s.Counter != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.Counter.WithLabelValues(s.Transport, result).Inc()
	}
	return err
}
