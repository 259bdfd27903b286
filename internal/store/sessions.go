package store

import (
	"sort"

	"chatrelay/internal/model"
)

// GetOrCreateSession resolves a session identifier, creating an empty
// session on first reference. Creation is idempotent: concurrent callers
// racing on a never-seen id observe exactly one session.
func (s *Store) GetOrCreateSession(sessionID string) model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID).snapshot()
}

// AddMember is a no-op when the user is already a member.
func (s *Store) AddMember(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(sessionID)
	sess.members[userID] = struct{}{}
}

func (s *Store) IsMember(sessionID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.getOrCreateLocked(sessionID).members[userID]
	return ok
}

func (s *Store) Members(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID).memberIDs()
}

// SessionsOf lists every session the user currently belongs to, ordered
// by session id so repeated calls are stable.
func (s *Store) SessionsOf(userID string) []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Session
	for _, sess := range s.sessionsByID {
		if _, ok := sess.members[userID]; ok {
			result = append(result, sess.snapshot())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// AppendMessage appends to the session's history and returns the member
// set in effect at that moment. Callers hand the snapshot to the fan-out
// registry: membership is evaluated per push, never retroactively.
func (s *Store) AppendMessage(msg model.Message) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(msg.Session)
	sess.history = append(sess.history, msg)
	return sess.memberIDs()
}

func (s *Store) getOrCreateLocked(sessionID string) *sessionState {
	sess, ok := s.sessionsByID[sessionID]
	if !ok {
		sess = &sessionState{id: sessionID, members: make(map[string]struct{})}
		s.sessionsByID[sessionID] = sess
	}
	return sess
}

func (st *sessionState) memberIDs() []string {
	ids := make([]string, 0, len(st.members))
	for id := range st.members {
		ids = append(ids, id)
	}
	return ids
}

func (st *sessionState) snapshot() model.Session {
	members := st.memberIDs()
	sort.Strings(members)
	history := make([]model.Message, len(st.history))
	copy(history, st.history)
	return model.Session{ID: st.id, Members: members, History: history}
}
