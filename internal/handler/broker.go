package handler

import (
	"sync"

	"chatrelay/internal/hub"
	"chatrelay/internal/model"
	"chatrelay/internal/store"
)

// Broker composes the session registry's append point with hub fan-out.
// Append always precedes dispatch, and the member snapshot returned by
// the append is reused for the dispatch, so a message lands in history
// and in flight with one consistent view of membership.
type Broker struct {
	Store *store.Store
	Hub   *hub.Hub

	mu sync.Mutex
}

// Push appends and fans out under one lock. Requests run on separate
// goroutines, so without the lock two posters could append in one order
// and dispatch in the other, letting a channel observe messages out of
// history order. Channel pushes never block, so holding the lock across
// the dispatch is cheap.
func (b *Broker) Push(msg model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	members := b.Store.AppendMessage(msg)
	b.Hub.Dispatch(members, msg)
}

// System synthesizes and pushes a broker-originated message, such as
// "created" or "invited" notices, attributed to the acting user.
func (b *Broker) System(origin model.User, sessionID, text string) model.Message {
	msg := model.Message{
		ID:      model.NewID(),
		Session: sessionID,
		Origin:  origin,
		Body:    text,
	}
	b.Push(msg)
	return msg
}
