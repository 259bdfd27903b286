package store

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"chatrelay/internal/model"
)

// CreateUser registers a user with a bcrypt-hashed password. The ID is
// generated when the caller leaves it empty. Usernames must be unique;
// the directory is scanned by name during authentication.
func (s *Store) CreateUser(user model.User, plainPassword string) (model.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = model.NewID()
	}
	for _, rec := range s.usersByID {
		if rec.user.Username == user.Username {
			return model.User{}, fmt.Errorf("username %q already taken", user.Username)
		}
	}

	s.usersByID[user.ID] = userRecord{user: user, hashedPassword: hashed}
	return user, nil
}

// CreateGuest registers a passwordless user with a generated name.
// Guests cannot re-authenticate; their only credential is the token
// issued alongside the record.
func (s *Store) CreateGuest() model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := model.User{
		ID:       model.NewID(),
		Username: "user-" + model.NewID()[:4],
	}
	s.usersByID[user.ID] = userRecord{user: user}
	return user
}

func (s *Store) GetUser(userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.usersByID[userID]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return rec.user, nil
}

func (s *Store) GetUserByName(username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.lookupByNameLocked(username)
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return rec.user, nil
}

// Authenticate compares the supplied password against the stored bcrypt
// hash. Unknown users and wrong passwords are indistinguishable to the
// caller. Passwordless (guest) records never authenticate.
func (s *Store) Authenticate(username, password string) (model.User, error) {
	s.mu.RLock()
	rec, ok := s.lookupByNameLocked(username)
	s.mu.RUnlock()

	if !ok || len(rec.hashedPassword) == 0 {
		return model.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.hashedPassword, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return model.User{}, ErrInvalidCredentials
		}
		return model.User{}, err
	}
	return rec.user, nil
}

func (s *Store) lookupByNameLocked(username string) (userRecord, bool) {
	for _, rec := range s.usersByID {
		if rec.user.Username == username {
			return rec, true
		}
	}
	return userRecord{}, false
}
