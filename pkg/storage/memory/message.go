package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/storage"
)

// Message is an in-memory storage.MessageStorage.
type Message struct {
	mu   sync.RWMutex
	data map[uuid.UUID][]byte
}

// NewMessage builds an empty in-memory message store.
func NewMessage() *Message {
	return &Message{data: make(map[uuid.UUID][]byte)}
}

func (m *Message) Save(_ context.Context, id uuid.UUID, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	m.data[id] = cp
	return nil
}

func (m *Message) Load(_ context.Context, id uuid.UUID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.data[id]
	if !ok {
		return nil, herrors.New(herrors.CodePermanent, "message not found")
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	return cp, nil
}

func (m *Message) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

var _ storage.MessageStorage = (*Message)(nil)
