package audit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/store"
)

// Service records per-flow activity logs. Log rows are written
// synchronously (the flow needs the log ID up front); messages are
// buffered and flushed by a background worker so provider round-trips
// never wait on the database.
type Service struct {
	store      *store.Store
	enabled    bool
	bufferSize int

	msgChan chan *models.ActivityMessage

	batchBuffer []*models.ActivityMessage
	batchMutex  sync.Mutex
	batchTicker *time.Ticker

	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// NewService creates a new activity log service
func NewService(s *store.Store, enabled bool, bufferSize int) *Service {
	if bufferSize <= 0 {
		bufferSize = 1000 // Default buffer size
	}

	service := &Service{
		store:       s,
		enabled:     enabled,
		bufferSize:  bufferSize,
		msgChan:     make(chan *models.ActivityMessage, bufferSize),
		batchBuffer: make([]*models.ActivityMessage, 0, 100),
		batchTicker: time.NewTicker(1 * time.Second),
		shutdownCh:  make(chan struct{}),
	}

	if enabled {
		service.wg.Add(1)
		go service.worker()
		log.Printf("Activity log service started with buffer size %d", bufferSize)
	} else {
		log.Println("Activity log service is disabled")
	}

	return service
}

// worker is the background goroutine that processes activity messages
func (s *Service) worker() {
	defer s.wg.Done()

	for {
		select {
		case msg := <-s.msgChan:
			s.addToBatch(msg)

		case <-s.batchTicker.C:
			// Flush batch every second
			s.flushBatch()

		case <-s.shutdownCh:
			// Flush remaining messages before shutdown
			s.drainChannel()
			s.flushBatch()
			return
		}
	}
}

// addToBatch adds a message to the batch buffer
func (s *Service) addToBatch(msg *models.ActivityMessage) {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()

	s.batchBuffer = append(s.batchBuffer, msg)

	// Flush if batch is full (100 entries)
	if len(s.batchBuffer) >= 100 {
		s.flushBatchUnsafe()
	}
}

// flushBatch flushes the batch buffer to the database (thread-safe)
func (s *Service) flushBatch() {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()
	s.flushBatchUnsafe()
}

// flushBatchUnsafe flushes the batch buffer without locking (caller must hold lock)
func (s *Service) flushBatchUnsafe() {
	if len(s.batchBuffer) == 0 {
		return
	}

	toWrite := make([]*models.ActivityMessage, len(s.batchBuffer))
	copy(toWrite, s.batchBuffer)
	s.batchBuffer = s.batchBuffer[:0]

	if err := s.store.CreateActivityMessages(toWrite); err != nil {
		log.Printf("Failed to write activity message batch: %v", err)
	}
}

// drainChannel moves any queued messages into the batch buffer. Only
// called on shutdown, after producers have stopped.
func (s *Service) drainChannel() {
	for {
		select {
		case msg := <-s.msgChan:
			s.addToBatch(msg)
		default:
			return
		}
	}
}

// Start opens a new activity log for an authorization flow and returns
// a handle for appending messages. The row is written synchronously so
// the flow can carry the log ID from the first redirect through the
// callback. When the service is disabled the handle still works but
// writes nothing.
func (s *Service) Start(action models.ActivityAction, providerConfigKey, provider, connectionID, environmentID string) (*Log, error) {
	entry := &models.ActivityLog{
		ID:                uuid.New().String(),
		Action:            action,
		State:             models.ActivityRunning,
		ProviderConfigKey: providerConfigKey,
		Provider:          provider,
		ConnectionID:      connectionID,
		EnvironmentID:     environmentID,
		StartedAt:         time.Now(),
		CreatedAt:         time.Now(),
	}

	if s.enabled {
		if err := s.store.CreateActivityLog(entry); err != nil {
			return nil, fmt.Errorf("failed to create activity log: %w", err)
		}
	}

	return &Log{service: s, id: entry.ID}, nil
}

// Resume returns a handle for an activity log created earlier in the
// flow, e.g. on the callback leg where only the log ID survived the
// redirect round-trip.
func (s *Service) Resume(id string) *Log {
	return &Log{service: s, id: id}
}

// enqueue offers a message to the worker without blocking.
func (s *Service) enqueue(msg *models.ActivityMessage) {
	if !s.enabled {
		return
	}

	select {
	case s.msgChan <- msg:
	default:
		// Channel is full, drop the message and log warning
		log.Printf("WARNING: Activity message buffer full, dropping: %s", msg.Message)
	}
}

// close transitions an activity log to its terminal state.
func (s *Service) close(id string, state models.ActivityState) {
	if !s.enabled {
		return
	}

	// Flush pending messages first so the log reads complete once closed
	s.flushBatch()

	if err := s.store.CloseActivityLog(id, state); err != nil {
		log.Printf("Failed to close activity log %s: %v", id, err)
	}
}

// Shutdown gracefully shuts down the activity log service
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.batchTicker.Stop()
	close(s.shutdownCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Activity log service shut down gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("activity log service shutdown timeout: %w", ctx.Err())
	}
}

// Log is a handle onto one activity log row.
type Log struct {
	service *Service
	id      string
}

// ID returns the activity log identifier, carried through the
// authorization redirect so the callback leg can resume logging.
func (l *Log) ID() string {
	if l == nil {
		return ""
	}
	return l.id
}

// Info appends an informational message to the log.
func (l *Log) Info(message string, details models.ActivityDetails) {
	if l == nil {
		return
	}
	l.service.enqueue(&models.ActivityMessage{
		ActivityLogID: l.id,
		Level:         models.LevelInfo,
		Message:       message,
		Details:       maskSensitiveDetails(details),
		CreatedAt:     time.Now(),
	})
}

// Error appends an error message to the log.
func (l *Log) Error(message string, details models.ActivityDetails) {
	if l == nil {
		return
	}
	l.service.enqueue(&models.ActivityMessage{
		ActivityLogID: l.id,
		Level:         models.LevelError,
		Message:       message,
		Details:       maskSensitiveDetails(details),
		CreatedAt:     time.Now(),
	})
}

// Success closes the log as SUCCESS.
func (l *Log) Success() {
	if l == nil {
		return
	}
	l.service.close(l.id, models.ActivitySuccess)
}

// Failed closes the log as FAILED.
func (l *Log) Failed() {
	if l == nil {
		return
	}
	l.service.close(l.id, models.ActivityFailed)
}

// maskSensitiveDetails masks credential material before it reaches storage
func maskSensitiveDetails(details models.ActivityDetails) models.ActivityDetails {
	if details == nil {
		return details
	}

	masked := make(models.ActivityDetails)
	for key, value := range details {
		if isSensitiveField(key) {
			masked[key] = "***REDACTED***"
			continue
		}

		// Partial masking for authorization codes and state tokens
		if isPartialMaskField(key) {
			if str, ok := value.(string); ok && len(str) > 12 {
				masked[key] = str[:8] + "..." + str[len(str)-4:]
				continue
			}
		}

		masked[key] = value
	}

	return masked
}

// isSensitiveField checks if a field should be completely masked
func isSensitiveField(key string) bool {
	key = strings.ToLower(key)
	sensitiveFields := []string{
		"client_secret",
		"token",
		"access_token",
		"refresh_token",
		"token_secret",
		"code_verifier",
		"secret",
	}

	for _, field := range sensitiveFields {
		if strings.Contains(key, field) {
			return true
		}
	}
	return false
}

// isPartialMaskField checks if a field should be partially masked
func isPartialMaskField(key string) bool {
	key = strings.ToLower(key)
	partialMaskFields := []string{
		"code",
		"state",
	}

	for _, field := range partialMaskFields {
		if key == field || strings.HasSuffix(key, "_"+field) {
			return true
		}
	}
	return false
}
