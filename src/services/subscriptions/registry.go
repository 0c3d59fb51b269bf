package subscriptions

import (
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatify/src/domain"
)

const shardCount = 16

// Sink is where delivered events land. Sends are non-blocking; a full
// sink loses the event for that subscriber only. Buffering and QoS are
// the sink owner's concern.
type Sink chan<- *domain.ChatEvent

type shard struct {
	mutex  sync.Mutex
	scopes map[string]map[string]Sink // scopeID -> connectionID -> sink
}

// Registry is the in-process scope to subscriber map one replica uses
// for local fan-out. Scope buckets are sharded so deliveries to
// unrelated scopes never contend.
//
// Each shard's mutex is held across the non-blocking sends of a
// delivery. That serializes deliveries per scope and guarantees a sink
// cannot receive an event after Unsubscribe for it has returned.
type Registry struct {
	shards [shardCount]*shard

	mutex       sync.Mutex
	connections map[string]map[string]struct{} // connectionID -> scopeIDs

	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		connections: make(map[string]map[string]struct{}),
		logger:      logger,
	}
	for i := range r.shards {
		r.shards[i] = &shard{scopes: make(map[string]map[string]Sink)}
	}
	return r
}

// Subscribe registers the sink for the scope. Repeated joins from the
// same connection coalesce; the first sink wins.
func (r *Registry) Subscribe(connectionID, scopeID string, sink Sink) {
	r.mutex.Lock()
	scopes, ok := r.connections[connectionID]
	if !ok {
		scopes = make(map[string]struct{})
		r.connections[connectionID] = scopes
	}
	scopes[scopeID] = struct{}{}
	r.mutex.Unlock()

	s := r.shardFor(scopeID)
	s.mutex.Lock()
	subscribers, ok := s.scopes[scopeID]
	if !ok {
		subscribers = make(map[string]Sink)
		s.scopes[scopeID] = subscribers
	}
	if _, exists := subscribers[connectionID]; !exists {
		subscribers[connectionID] = sink
	}
	s.mutex.Unlock()
}

// Unsubscribe removes the connection from the scope. Idempotent. Once
// it returns, the connection's sink sees no further events for the
// scope.
func (r *Registry) Unsubscribe(connectionID, scopeID string) {
	r.mutex.Lock()
	if scopes, ok := r.connections[connectionID]; ok {
		delete(scopes, scopeID)
		if len(scopes) == 0 {
			delete(r.connections, connectionID)
		}
	}
	r.mutex.Unlock()

	s := r.shardFor(scopeID)
	s.mutex.Lock()
	if subscribers, ok := s.scopes[scopeID]; ok {
		delete(subscribers, connectionID)
		if len(subscribers) == 0 {
			delete(s.scopes, scopeID)
		}
	}
	s.mutex.Unlock()
}

// DropConnection removes the connection from every scope it joined.
func (r *Registry) DropConnection(connectionID string) {
	r.mutex.Lock()
	scopeIDs := lo.Keys(r.connections[connectionID])
	delete(r.connections, connectionID)
	r.mutex.Unlock()

	for _, scopeID := range scopeIDs {
		s := r.shardFor(scopeID)
		s.mutex.Lock()
		if subscribers, ok := s.scopes[scopeID]; ok {
			delete(subscribers, connectionID)
			if len(subscribers) == 0 {
				delete(s.scopes, scopeID)
			}
		}
		s.mutex.Unlock()
	}
}

// Deliver fans the event out to every local subscriber of the scope.
// Returns how many sinks accepted it. Backpressured sinks lose the
// event; the drop is logged per subscriber.
func (r *Registry) Deliver(scopeID string, event *domain.ChatEvent) int {
	s := r.shardFor(scopeID)

	delivered := 0
	s.mutex.Lock()
	for connectionID, sink := range s.scopes[scopeID] {
		select {
		case sink <- event:
			delivered++
		default:
			r.logger.Warn().Msgf(
				"dropped message '%s' for backpressured connection '%s' on scope '%s'",
				event.MessageID, connectionID, scopeID,
			)
		}
	}
	s.mutex.Unlock()

	return delivered
}

// Subscribers reports how many connections are joined to the scope.
func (r *Registry) Subscribers(scopeID string) int {
	s := r.shardFor(scopeID)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.scopes[scopeID])
}

func (r *Registry) shardFor(scopeID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scopeID))
	return r.shards[h.Sum32()%shardCount]
}
