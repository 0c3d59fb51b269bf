package subscriptions

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatify/src/domain"
)

func testEvent(scopeID string) *domain.ChatEvent {
	return &domain.ChatEvent{
		MessageID:       uuid.New(),
		ScopeType:       domain.ScopeChannel,
		ScopeID:         scopeID,
		SenderID:        "u-1",
		Text:            "hi",
		CreatedAtUTC:    time.Now().UTC(),
		OriginReplicaID: "chatify-0",
	}
}

func TestSubscribeAndDeliver(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	sink := make(chan *domain.ChatEvent, 1)

	r.Subscribe("c1", "general", sink)

	event := testEvent("general")
	assert.Equal(t, 1, r.Deliver("general", event))
	assert.Equal(t, event, <-sink)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	sink := make(chan *domain.ChatEvent, 2)

	r.Subscribe("c1", "general", sink)
	r.Subscribe("c1", "general", sink)
	require.Equal(t, 1, r.Subscribers("general"))

	assert.Equal(t, 1, r.Deliver("general", testEvent("general")))
	assert.Len(t, sink, 1, "coalesced joins deliver once")
}

func TestDeliverToScopeWithoutSubscribers(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	assert.Equal(t, 0, r.Deliver("empty", testEvent("empty")))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	sink := make(chan *domain.ChatEvent, 1)

	r.Subscribe("c1", "general", sink)
	r.Unsubscribe("c1", "general")
	r.Unsubscribe("c1", "general") // idempotent

	assert.Equal(t, 0, r.Deliver("general", testEvent("general")))
	assert.Empty(t, sink)
}

func TestBackpressuredSinkDropsEvent(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	full := make(chan *domain.ChatEvent) // unbuffered, nobody reading
	healthy := make(chan *domain.ChatEvent, 1)

	r.Subscribe("c1", "general", full)
	r.Subscribe("c2", "general", healthy)

	assert.Equal(t, 1, r.Deliver("general", testEvent("general")))
	assert.Len(t, healthy, 1, "one slow subscriber must not starve the rest")
}

func TestDropConnectionRemovesAllScopes(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	sink := make(chan *domain.ChatEvent, 4)

	r.Subscribe("c1", "general", sink)
	r.Subscribe("c1", "random", sink)
	r.Subscribe("c2", "general", sink)

	r.DropConnection("c1")

	assert.Equal(t, 1, r.Subscribers("general"))
	assert.Equal(t, 0, r.Subscribers("random"))

	r.DropConnection("c1") // idempotent
}

func TestConcurrentSubscribeAndDeliver(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scope := "scope-" + strconv.Itoa(i%4)
			sink := make(chan *domain.ChatEvent, 64)

			r.Subscribe("conn-"+strconv.Itoa(i), scope, sink)
			for j := 0; j < 16; j++ {
				r.Deliver(scope, testEvent(scope))
			}
			r.DropConnection("conn-" + strconv.Itoa(i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Equal(t, 0, r.Subscribers("scope-"+strconv.Itoa(i)))
	}
}

func TestNoDeliveryAfterUnsubscribeReturns(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	for iter := 0; iter < 50; iter++ {
		sink := make(chan *domain.ChatEvent, 1024)
		r.Subscribe("c1", "general", sink)

		stop := make(chan struct{})
		go func() {
			for {
				select {
				case <-stop:
					return
				default:
					r.Deliver("general", testEvent("general"))
				}
			}
		}()

		r.Unsubscribe("c1", "general")
		seen := len(sink)
		time.Sleep(time.Millisecond)
		assert.Equal(t, seen, len(sink), "no event may arrive after unsubscribe returned")
		close(stop)
	}
}
