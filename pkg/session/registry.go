// Package session owns the room → conversation mapping.
//
// A room has at most one conversation at any time. Conversations are created
// lazily on first use, destroyed only by the forget command, and never
// persisted across process restarts.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// Conversation is the opaque handle to a model-backed chat context.
// Implementations are not safe for concurrent use; the registry's per-room
// lock serializes all access.
type Conversation interface {
	// Send submits plain text and returns the model's reply text.
	Send(ctx context.Context, text string) (string, error)
	// Describe submits image bytes with a short description prompt and
	// returns the model's reply text.
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Factory creates a fresh conversation bound to the configured model.
type Factory func(ctx context.Context) (Conversation, error)

type entry struct {
	id        string
	conv      Conversation
	createdAt time.Time
}

// Registry maps room IDs to conversations. All map mutations are atomic with
// respect to concurrent message-handling units.
type Registry struct {
	factory Factory
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[id.RoomID]*entry

	roomLocks sync.Map // id.RoomID -> *sync.Mutex
}

func NewRegistry(factory Factory, log zerolog.Logger) *Registry {
	return &Registry{
		factory: factory,
		log:     log.With().Str("component", "session_registry").Logger(),
		entries: make(map[id.RoomID]*entry),
	}
}

// GetOrCreate returns the room's conversation, creating one if absent.
// Creating when one already exists is a no-op returning the existing handle.
func (r *Registry) GetOrCreate(ctx context.Context, roomID id.RoomID) (Conversation, error) {
	r.mu.Lock()
	if e, ok := r.entries[roomID]; ok {
		r.mu.Unlock()
		return e.conv, nil
	}
	r.mu.Unlock()

	// Created outside the map lock: the factory may do network IO.
	// The caller holds the room lock, so no same-room race is possible,
	// and the recheck below covers the rest.
	conv, err := r.factory(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[roomID]; ok {
		return e.conv, nil
	}
	e := &entry{id: uuid.NewString(), conv: conv, createdAt: time.Now()}
	r.entries[roomID] = e
	r.log.Debug().Stringer("room_id", roomID).Str("session_id", e.id).Msg("Created conversation session")
	return conv, nil
}

// Destroy removes the room's conversation if present. Destroying an absent
// room is a no-op.
func (r *Registry) Destroy(roomID id.RoomID) {
	r.mu.Lock()
	e, existed := r.entries[roomID]
	delete(r.entries, roomID)
	r.mu.Unlock()
	if existed {
		r.log.Debug().Stringer("room_id", roomID).Str("session_id", e.id).Msg("Destroyed conversation session")
	}
}

// RoomLock returns the mutex serializing message-handling units for a room.
// Units for different rooms run concurrently; units for the same room must
// not race on the conversation.
func (r *Registry) RoomLock(roomID id.RoomID) *sync.Mutex {
	if val, ok := r.roomLocks.Load(roomID); ok {
		return val.(*sync.Mutex)
	}
	actual, _ := r.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
