package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/mailer"
	"github.com/makors/vender/internal/metrics"
	"github.com/makors/vender/internal/models"
)

const sendTimeout = 30 * time.Second

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Queue delivers ticket mail on a fixed pool of workers. Notify never blocks the caller.
type Queue struct {
	sender  mailer.Sender
	log     *logger.Logger
	jobs    chan *models.TicketNotification
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(cfg config.NotifyConfig, sender mailer.Sender, log *logger.Logger) *Queue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	buffer := cfg.Buffer
	if buffer < 0 {
		buffer = 0
	}
	return &Queue{
		sender:  sender,
		log:     log,
		jobs:    make(chan *models.TicketNotification, buffer),
		workers: workers,
	}
}

// Start launches the workers. They exit once Close has drained the queue.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.log.LogProcess("NOTIFY", fmt.Sprintf("Started %d notification workers", q.workers))
}

func (q *Queue) Notify(ctx context.Context, n *models.TicketNotification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for n := range q.jobs {
		q.deliver(id, n)
	}
}

func (q *Queue) deliver(worker int, n *models.TicketNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := q.sender.SendTicket(ctx, n); err != nil {
		metrics.TrackNotification("failed")
		q.log.Error("NOTIFY", fmt.Sprintf("Worker %d failed to deliver %s for ticket %s: %v", worker, n.Type, n.TicketID, err))
		return
	}
	metrics.TrackNotification("sent")
}

// Close stops accepting notifications and waits for queued ones to be delivered or for ctx
// to expire.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.log.LogProcess("NOTIFY", "Notification queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification queue did not drain: %w", ctx.Err())
	}
}
