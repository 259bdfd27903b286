package store

import (
	"errors"
	"sync"

	"chatrelay/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUserNotFound       = errors.New("user not found")
)

// Store is the process-wide user directory and session registry. All
// mutations happen under one lock, which is what makes appendMessage the
// single serialization point per session: history append and the
// membership snapshot used for fan-out are taken atomically.
type Store struct {
	mu sync.RWMutex

	usersByID    map[string]userRecord
	sessionsByID map[string]*sessionState
}

type userRecord struct {
	user           model.User
	hashedPassword []byte
}

type sessionState struct {
	id      string
	members map[string]struct{}
	history []model.Message
}

func New() *Store {
	return &Store{
		usersByID:    make(map[string]userRecord),
		sessionsByID: make(map[string]*sessionState),
	}
}
