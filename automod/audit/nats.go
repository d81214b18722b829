package audit

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// Publishes JSON records on "<prefix>.<communityID>".
type NatsSink struct {
	Conn          *nats.Conn
	SubjectPrefix string
}

func (s *NatsSink) Emit(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", s.SubjectPrefix, rec.CommunityID)
	if err := s.Conn.Publish(subject, b); err != nil {
		return fmt.Errorf("publishing audit record: %w", err)
	}
	return nil
}
