package natsrpc

import (
	"context"
	"fmt"
)

// PublishConn is the part of *nats.Conn the publisher needs
type PublishConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Publisher delivers events as plain NATS messages
type Publisher struct {
	conn PublishConn
}

// NewPublisher creates a new Publisher instance
func NewPublisher(conn PublishConn) *Publisher {
	return &Publisher{conn: conn}
}

// Publish sends data on subject and waits for the server to acknowledge the
// flush, bounded by ctx
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush %s: %w", subject, err)
	}
	return nil
}
