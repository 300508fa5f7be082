package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

type fakeConversation struct {
	n int32
}

func (f *fakeConversation) Send(_ context.Context, _ string) (string, error) {
	return "ok", nil
}

func (f *fakeConversation) Describe(_ context.Context, _ []byte, _ string) (string, error) {
	return "an image", nil
}

func countingFactory(created *int32) Factory {
	return func(_ context.Context) (Conversation, error) {
		n := atomic.AddInt32(created, 1)
		return &fakeConversation{n: n}, nil
	}
}

func TestGetOrCreateReturnsSameConversation(t *testing.T) {
	var created int32
	reg := NewRegistry(countingFactory(&created), zerolog.Nop())

	first, err := reg.GetOrCreate(context.Background(), "!room:example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := reg.GetOrCreate(context.Background(), "!room:example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same conversation handle on repeat GetOrCreate")
	}
	if created != 1 {
		t.Fatalf("factory ran %d times, want 1", created)
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	var created int32
	reg := NewRegistry(countingFactory(&created), zerolog.Nop())

	a, _ := reg.GetOrCreate(context.Background(), "!a:example.org")
	b, _ := reg.GetOrCreate(context.Background(), "!b:example.org")
	if a == b {
		t.Fatalf("two rooms share a conversation handle")
	}
	if created != 2 {
		t.Fatalf("factory ran %d times, want 2", created)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	var created int32
	reg := NewRegistry(countingFactory(&created), zerolog.Nop())

	roomID := id.RoomID("!room:example.org")
	first, _ := reg.GetOrCreate(context.Background(), roomID)
	reg.Destroy(roomID)
	reg.Destroy(roomID) // absent, no-op

	second, _ := reg.GetOrCreate(context.Background(), roomID)
	if first == second {
		t.Fatalf("expected a fresh conversation after Destroy")
	}
	if created != 2 {
		t.Fatalf("factory ran %d times, want 2", created)
	}
}

func TestFactoryErrorIsReturned(t *testing.T) {
	wantErr := errors.New("backend down")
	reg := NewRegistry(func(_ context.Context) (Conversation, error) {
		return nil, wantErr
	}, zerolog.Nop())

	if _, err := reg.GetOrCreate(context.Background(), "!room:example.org"); !errors.Is(err, wantErr) {
		t.Fatalf("got err %v, want %v", err, wantErr)
	}
}

func TestConcurrentGetOrCreateSingleEntry(t *testing.T) {
	var created int32
	reg := NewRegistry(countingFactory(&created), zerolog.Nop())

	roomID := id.RoomID("!room:example.org")
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := reg.RoomLock(roomID)
			lock.Lock()
			defer lock.Unlock()
			if _, err := reg.GetOrCreate(context.Background(), roomID); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("factory ran %d times, want 1", created)
	}
}
