// Package events publishes transfer lifecycle events for any local listener
// (an operator console panel, a log tailer) to subscribe to.
package events

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a TransferEvent.
type Type int

const (
	Started Type = iota + 1
	Progress
	Completed
	Failed
	ChunkSent
	ChunkAccepted
)

func (t Type) String() string {
	switch t {
	case Started:
		return "STARTED"
	case Progress:
		return "PROGRESS"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	case ChunkSent:
		return "CHUNK_SENT"
	case ChunkAccepted:
		return "CHUNK_ACCEPTED"
	default:
		return "UNKNOWN"
	}
}

// TransferEvent is one lifecycle notification about a named transfer.
type TransferEvent struct {
	Filename  string
	Type      Type
	Timestamp time.Time
	Progress  float64
	Message   string
	Metadata  map[string]string
}

// Subscription is an active listener's inbox.
type Subscription struct {
	ID             uuid.UUID
	FilenameFilter string
	Channel        chan *TransferEvent
}

// Publisher fans TransferEvents out to subscribers without blocking on a
// slow consumer.
type Publisher struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*Subscription
	bufferSize    int
}

// NewPublisher creates a publisher whose subscriber channels are buffered
// to bufferSize.
func NewPublisher(bufferSize int) *Publisher {
	return &Publisher{
		subscriptions: make(map[uuid.UUID]*Subscription),
		bufferSize:    bufferSize,
	}
}

// Subscribe creates a new subscription, optionally filtered to one filename.
func (p *Publisher) Subscribe(filenameFilter string) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &Subscription{
		ID:             uuid.New(),
		FilenameFilter: filenameFilter,
		Channel:        make(chan *TransferEvent, p.bufferSize),
	}
	p.subscriptions[sub.ID] = sub
	return sub
}

// Unsubscribe closes and removes a subscription.
func (p *Publisher) Unsubscribe(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subscriptions[id]; ok {
		close(sub.Channel)
		delete(p.subscriptions, id)
	}
}

// Publish broadcasts event to every matching subscriber, dropping it for
// any subscriber whose buffer is full rather than blocking the caller.
func (p *Publisher) Publish(event *TransferEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, sub := range p.subscriptions {
		if sub.FilenameFilter != "" && sub.FilenameFilter != event.Filename {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
		}
	}
}

// PublishStarted publishes a transfer-started event.
func (p *Publisher) PublishStarted(filename string, fileSize int64) {
	p.Publish(&TransferEvent{
		Filename:  filename,
		Type:      Started,
		Timestamp: time.Now(),
		Message:   "transfer started",
		Metadata:  map[string]string{"file_size": strconv.FormatInt(fileSize, 10)},
	})
}

// PublishProgress publishes a progress update.
func (p *Publisher) PublishProgress(filename string, progressPercent float64) {
	p.Publish(&TransferEvent{
		Filename:  filename,
		Type:      Progress,
		Timestamp: time.Now(),
		Progress:  progressPercent,
		Message:   "transfer in progress",
	})
}

// PublishCompleted publishes a completion event.
func (p *Publisher) PublishCompleted(filename string, totalTime time.Duration) {
	p.Publish(&TransferEvent{
		Filename:  filename,
		Type:      Completed,
		Timestamp: time.Now(),
		Progress:  100,
		Message:   "transfer completed",
		Metadata:  map[string]string{"duration_seconds": strconv.FormatInt(int64(totalTime.Seconds()), 10)},
	})
}

// PublishFailed publishes a failure event.
func (p *Publisher) PublishFailed(filename, errMsg string) {
	p.Publish(&TransferEvent{
		Filename:  filename,
		Type:      Failed,
		Timestamp: time.Now(),
		Message:   errMsg,
	})
}

// PublishChunkSent publishes a chunk-sent event.
func (p *Publisher) PublishChunkSent(filename string, chunkNumber int) {
	p.Publish(&TransferEvent{
		Filename:  filename,
		Type:      ChunkSent,
		Timestamp: time.Now(),
		Metadata:  map[string]string{"chunk_number": strconv.Itoa(chunkNumber)},
	})
}

// PublishChunkAccepted publishes a chunk-accepted event.
func (p *Publisher) PublishChunkAccepted(filename string, chunkNumber int) {
	p.Publish(&TransferEvent{
		Filename:  filename,
		Type:      ChunkAccepted,
		Timestamp: time.Now(),
		Metadata:  map[string]string{"chunk_number": strconv.Itoa(chunkNumber)},
	})
}

// SubscriptionCount returns the number of active subscriptions.
func (p *Publisher) SubscriptionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}
