package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/maingoo/auth-service/models"
	"go.uber.org/zap"
)

// SubjectUserCreated is published after a registration commits
const SubjectUserCreated = "auth.user.created"

// Publisher delivers an encoded event to the message bus
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Recorder observes event outcomes (metrics)
type Recorder interface {
	EventPublished(subject string)
	EventFailed(subject string)
	EventDropped(subject string)
}

// Event is a subject plus its JSON payload
type Event struct {
	Subject string
	Payload interface{}
}

// UserCreated is the payload of SubjectUserCreated
type UserCreated struct {
	UserID       string  `json:"userId"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	RoleID       string  `json:"roleId"`
	EnterpriseID *string `json:"enterpriseId"`
	CreatedAt    string  `json:"createdAt"`
}

// NewUserCreated builds the registration event for user
func NewUserCreated(user *models.User) Event {
	return Event{
		Subject: SubjectUserCreated,
		Payload: UserCreated{
			UserID:       user.ID.String(),
			Email:        user.Email,
			Name:         user.Name,
			RoleID:       user.RoleID.String(),
			EnterpriseID: user.EnterpriseID,
			CreatedAt:    user.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

// Config holds configuration for the Emitter
type Config struct {
	BufferSize     int           // Size of the event buffer channel
	WorkerCount    int           // Number of concurrent workers
	PublishTimeout time.Duration // Upper bound for one publish call
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     1024,
		WorkerCount:    2,
		PublishTimeout: 5 * time.Second,
	}
}

// Emitter publishes events asynchronously through a bounded queue.
// Emit never blocks and never fails the caller; a full queue drops the event.
type Emitter struct {
	publisher Publisher
	recorder  Recorder
	logger    *zap.Logger
	config    Config

	eventChan chan Event
	wg        sync.WaitGroup
	mu        sync.RWMutex
	started   bool
	stopped   bool
}

// NewEmitter creates a new Emitter instance. recorder may be nil.
func NewEmitter(publisher Publisher, recorder Recorder, logger *zap.Logger, config Config) *Emitter {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultConfig().PublishTimeout
	}

	return &Emitter{
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		config:    config,
		eventChan: make(chan Event, config.BufferSize),
	}
}

// Start starts the background workers
func (e *Emitter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("event emitter already started")
	}

	for i := 0; i < e.config.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.started = true
	e.logger.Info("started event emitter",
		zap.Int("worker_count", e.config.WorkerCount),
		zap.Int("buffer_size", e.config.BufferSize))

	return nil
}

// Stop closes the queue and waits for workers to drain it
func (e *Emitter) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("event emitter not running")
	}
	e.stopped = true
	close(e.eventChan)
	e.mu.Unlock()

	e.logger.Info("stopping event emitter", zap.Int("pending_events", len(e.eventChan)))

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("event emitter stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event emitter stop timeout after %v", timeout)
	}
}

// Emit queues an event. It reports whether the event was accepted.
func (e *Emitter) Emit(event Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started || e.stopped {
		e.logger.Warn("event emitter not running, dropping event", zap.String("subject", event.Subject))
		e.dropped(event.Subject)
		return false
	}

	select {
	case e.eventChan <- event:
		return true
	default:
		e.logger.Warn("event channel full, dropping event", zap.String("subject", event.Subject))
		e.dropped(event.Subject)
		return false
	}
}

func (e *Emitter) worker(id int) {
	defer e.wg.Done()

	e.logger.Debug("event worker started", zap.Int("worker_id", id))

	for event := range e.eventChan {
		if err := e.publish(event); err != nil {
			e.logger.Error("failed to publish event",
				zap.Int("worker_id", id),
				zap.String("subject", event.Subject),
				zap.Error(err))
			if e.recorder != nil {
				e.recorder.EventFailed(event.Subject)
			}
			continue
		}
		if e.recorder != nil {
			e.recorder.EventPublished(event.Subject)
		}
	}

	e.logger.Debug("event worker stopped", zap.Int("worker_id", id))
}

func (e *Emitter) publish(event Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.PublishTimeout)
	defer cancel()

	return e.publisher.Publish(ctx, event.Subject, data)
}

func (e *Emitter) dropped(subject string) {
	if e.recorder != nil {
		e.recorder.EventDropped(subject)
	}
}

// GetStats returns statistics about the emitter
func (e *Emitter) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		BufferSize:    e.config.BufferSize,
		PendingEvents: len(e.eventChan),
		WorkerCount:   e.config.WorkerCount,
		Started:       e.started && !e.stopped,
	}
}

// Stats represents emitter statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}
