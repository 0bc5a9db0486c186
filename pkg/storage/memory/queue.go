package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/storage"
)

// Queue is an in-memory storage.QueueStorage: a map of FIFO slices per
// named queue guarded by one mutex, with a side table of in-flight
// (dequeued, unacknowledged) items keyed by receipt, used where no
// broker is configured.
type Queue struct {
	mu       sync.Mutex
	queues   map[string][][]byte
	created  map[string]bool
	inflight map[string]inflightItem
}

type inflightItem struct {
	queue string
	body  []byte
}

// NewQueue builds an empty in-memory queue store.
func NewQueue() *Queue {
	return &Queue{
		queues:   make(map[string][][]byte),
		created:  make(map[string]bool),
		inflight: make(map[string]inflightItem),
	}
}

func (q *Queue) CreateQueue(_ context.Context, queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.created[queue] = true
	if _, ok := q.queues[queue]; !ok {
		q.queues[queue] = nil
	}
	return nil
}

func (q *Queue) DeleteQueue(_ context.Context, queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues, queue)
	delete(q.created, queue)
	for receipt, item := range q.inflight {
		if item.queue == queue {
			delete(q.inflight, receipt)
		}
	}
	return nil
}

func (q *Queue) GetQueues(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, 0, len(q.queues))
	for name := range q.queues {
		names = append(names, name)
	}
	return names, nil
}

func (q *Queue) QueueExists(_ context.Context, queue string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queues[queue]
	return ok, nil
}

func (q *Queue) Enqueue(_ context.Context, queue string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	q.queues[queue] = append(q.queues[queue], cp)
	return nil
}

func (q *Queue) Dequeue(_ context.Context, queue string) (storage.QueueItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.queues[queue]
	if len(items) == 0 {
		return storage.QueueItem{}, false, nil
	}
	head := items[0]
	q.queues[queue] = items[1:]

	receipt := uuid.New().String()
	q.inflight[receipt] = inflightItem{queue: queue, body: head}
	return storage.QueueItem{Receipt: receipt, Body: head}, true, nil
}

func (q *Queue) Peek(_ context.Context, queue string) (storage.QueueItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.queues[queue]
	if len(items) == 0 {
		return storage.QueueItem{}, false, nil
	}
	return storage.QueueItem{Body: items[0]}, true, nil
}

func (q *Queue) Acknowledge(_ context.Context, _ string, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[receipt]; !ok {
		return herrors.ErrNotFound
	}
	delete(q.inflight, receipt)
	return nil
}

// Reject resolves a dequeued item as failed. With requeue it is pushed
// back onto the tail of its queue; otherwise it's discarded.
func (q *Queue) Reject(_ context.Context, _ string, receipt string, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.inflight[receipt]
	if !ok {
		return herrors.ErrNotFound
	}
	delete(q.inflight, receipt)
	if requeue {
		q.queues[item.queue] = append(q.queues[item.queue], item.body)
	}
	return nil
}

func (q *Queue) GetQueueDepth(_ context.Context, queue string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queue]), nil
}

var _ storage.QueueStorage = (*Queue)(nil)
