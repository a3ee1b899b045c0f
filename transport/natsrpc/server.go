package natsrpc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maingoo/auth-service/config"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Connect dials the configured NATS servers with reconnect handling
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("nats async error", fields...)
		}),
	}

	conn, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return conn, nil
}

// Subscriber is the part of *nats.Conn the server needs
type Subscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Server answers request/reply traffic for every router subject through a
// queue group. Each subject handles at most MaxConcurrent requests at once.
// A message arriving while every slot is busy is logged and counted, then
// holds the subscription callback until a slot frees, so later messages
// queue in the subscription's pending buffer (PendingMsgs/PendingBytes).
// Overflowing that buffer makes NATS drop messages and report a slow
// consumer through the async error handler.
type Server struct {
	conn    Subscriber
	router  *Router
	config  config.NATSConfig
	logger  *zap.Logger
	respond func(msg *nats.Msg, data []byte) error

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	subs    []*nats.Subscription
	wg      sync.WaitGroup
	closing bool
}

// NewServer creates a new Server instance
func NewServer(conn Subscriber, router *Router, cfg config.NATSConfig, logger *zap.Logger) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		conn:    conn,
		router:  router,
		config:  cfg,
		logger:  logger,
		respond: func(msg *nats.Msg, data []byte) error { return msg.Respond(data) },
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start subscribes to every subject of the router
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) > 0 {
		return fmt.Errorf("nats server already started")
	}

	for _, subject := range s.router.Subjects() {
		slots := make(chan struct{}, s.config.MaxConcurrent)
		sub, err := s.conn.QueueSubscribe(subject, s.config.QueueGroup, s.handler(slots))
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)

		if s.config.PendingMsgs > 0 && s.config.PendingBytes > 0 {
			if err := sub.SetPendingLimits(s.config.PendingMsgs, s.config.PendingBytes); err != nil {
				s.logger.Warn("failed to set pending limits", zap.String("subject", subject), zap.Error(err))
			}
		}
	}

	s.logger.Info("nats server started",
		zap.String("queue_group", s.config.QueueGroup),
		zap.Strings("subjects", s.router.Subjects()),
		zap.Int("max_concurrent", s.config.MaxConcurrent),
		zap.Int("pending_msgs", s.config.PendingMsgs),
		zap.Int("pending_bytes", s.config.PendingBytes))
	return nil
}

// Shutdown stops receiving requests and waits for in-flight ones. When ctx
// expires first, in-flight handlers are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.unsubscribeLocked()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("nats server stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("nats server shutdown: %w", ctx.Err())
	}
}

func (s *Server) handler(slots chan struct{}) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()

		select {
		case slots <- struct{}{}:
		default:
			s.router.metrics.NATSSaturated(msg.Subject)
			s.logger.Warn("all handler slots busy, waiting",
				zap.String("subject", msg.Subject),
				zap.Int("max_concurrent", cap(slots)))
			slots <- struct{}{}
		}
		go func() {
			defer func() {
				<-slots
				s.wg.Done()
			}()
			s.serve(msg)
		}()
	}
}

func (s *Server) serve(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.config.RequestTimeout)
	defer cancel()

	reply := s.router.Dispatch(ctx, msg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := s.respond(msg, reply); err != nil {
		s.logger.Warn("failed to send reply", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// unsubscribeLocked must be called with mu held
func (s *Server) unsubscribeLocked() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	s.subs = nil
}
