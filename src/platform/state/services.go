package state

import (
	"chatify/src/services/broadcast"
	"chatify/src/services/chat"
	"chatify/src/services/history"
	"chatify/src/services/persister"
	"chatify/src/services/presence"
	"chatify/src/services/producer"
	"chatify/src/services/ratelimit"
	"chatify/src/services/subscriptions"
)

type Services struct {
	Presence      *presence.Service
	RateLimit     *ratelimit.Service
	Producer      *producer.Service
	Chat          *chat.Service
	Subscriptions *subscriptions.Registry
	Broadcast     *broadcast.Service
	Persister     *persister.Service
	History       *history.Store
}
