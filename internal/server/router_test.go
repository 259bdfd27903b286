package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/auth"
	"chatrelay/internal/model"
	"chatrelay/internal/store"
)

func newTestDeps(t *testing.T) (Deps, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New()
	for _, name := range []string{"alice", "bob", "charlie"} {
		if _, err := st.CreateUser(model.User{Username: name}, name); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	deps := Deps{
		Store:          st,
		TokenConfig:    auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"},
		DefaultMembers: []string{"alice", "bob", "charlie"},
	}
	return deps, st
}

func tokenFor(t *testing.T, deps Deps, username string) string {
	t.Helper()
	user, err := deps.Store.GetUserByName(username)
	if err != nil {
		t.Fatalf("GetUserByName(%s): %v", username, err)
	}
	tok, err := auth.CreateToken(user.ID, user.Username, deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	deps, _ := newTestDeps(t)
	r := NewRouter(deps)

	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestTokenEndpoint(t *testing.T) {
	deps, _ := newTestDeps(t)
	r := NewRouter(deps)

	form := url.Values{"username": {"alice"}, "password": {"alice"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["access_token"] == "" || resp["token_type"] != "bearer" {
		t.Fatalf("unexpected token response: %v", resp)
	}

	// Token works against a protected endpoint.
	w2 := doJSON(t, r, http.MethodGet, "/chat/me", resp["access_token"], nil)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 from /chat/me, got %d: %s", w2.Code, w2.Body.String())
	}
	var me model.User
	if err := json.Unmarshal(w2.Body.Bytes(), &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Username != "alice" {
		t.Fatalf("expected alice, got %q", me.Username)
	}
}

func TestTokenEndpoint_BadCredentials(t *testing.T) {
	deps, _ := newTestDeps(t)
	r := NewRouter(deps)

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGuestToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	r := NewRouter(deps)

	w := doJSON(t, r, http.MethodPost, "/guest-token", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w2 := doJSON(t, r, http.MethodGet, "/chat/me", resp["access_token"], nil)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
	var me model.User
	if err := json.Unmarshal(w2.Body.Bytes(), &me); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasPrefix(me.Username, "user-") {
		t.Fatalf("expected generated guest name, got %q", me.Username)
	}
}

func TestExpiredToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	r := NewRouter(deps)

	expiredCfg := deps.TokenConfig
	expiredCfg.Expiry = time.Nanosecond
	user, err := deps.Store.GetUserByName("alice")
	if err != nil {
		t.Fatalf("GetUserByName: %v", err)
	}
	tok, err := auth.CreateToken(user.ID, user.Username, expiredCfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	w := doJSON(t, r, http.MethodGet, "/chat/me", tok, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", w.Code)
	}
}

func TestCreateChat(t *testing.T) {
	deps, st := newTestDeps(t)
	r := NewRouter(deps)
	guest := st.CreateGuest()
	tok, err := auth.CreateToken(guest.ID, guest.Username, deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/chat", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var session model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if session.ID == "" {
		t.Fatalf("expected session id")
	}
	if len(session.Members) != 4 {
		t.Fatalf("expected caller plus 3 default members, got %v", session.Members)
	}
	if len(session.History) != 1 {
		t.Fatalf("expected a created system message, got %d messages", len(session.History))
	}
	if !strings.Contains(session.History[0].Body, "created") {
		t.Fatalf("expected created notice, got %q", session.History[0].Body)
	}

	// And the session shows up in the caller's list.
	w2 := doJSON(t, r, http.MethodGet, "/chat/me/sessions", tok, nil)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
	var sessions []model.Session
	if err := json.Unmarshal(w2.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != session.ID {
		t.Fatalf("expected session %s in list, got %v", session.ID, sessions)
	}
}

func TestPostMessage(t *testing.T) {
	deps, st := newTestDeps(t)
	r := NewRouter(deps)
	tok := tokenFor(t, deps, "alice")

	w := doJSON(t, r, http.MethodPost, "/chat", tok, nil)
	var session model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/chat/"+session.ID+"/post", tok, map[string]string{"content": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var msg model.Message
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Session != session.ID || msg.Body != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Origin.Username != "alice" {
		t.Fatalf("expected origin alice, got %q", msg.Origin.Username)
	}

	history := st.GetOrCreateSession(session.ID).History
	if history[len(history)-1].Body != "hello" {
		t.Fatalf("expected hello appended to history, got %q", history[len(history)-1].Body)
	}
}

func TestPostMessage_NotMember(t *testing.T) {
	deps, st := newTestDeps(t)
	r := NewRouter(deps)
	aliceTok := tokenFor(t, deps, "alice")

	w := doJSON(t, r, http.MethodPost, "/chat", aliceTok, nil)
	var session model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	before := len(st.GetOrCreateSession(session.ID).History)

	guest := st.CreateGuest()
	guestTok, err := auth.CreateToken(guest.ID, guest.Username, deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/chat/"+session.ID+"/post", guestTok, map[string]string{"content": "intrusion"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if after := len(st.GetOrCreateSession(session.ID).History); after != before {
		t.Fatalf("expected history unchanged, got %d -> %d", before, after)
	}
}

func TestInvite(t *testing.T) {
	deps, st := newTestDeps(t)
	r := NewRouter(deps)
	tok := tokenFor(t, deps, "alice")

	w := doJSON(t, r, http.MethodPost, "/chat", tok, nil)
	var session model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	guest := st.CreateGuest()
	w = doJSON(t, r, http.MethodPost, "/chat/"+session.ID+"/invite", tok, map[string]string{"user_id": guest.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !st.IsMember(session.ID, guest.ID) {
		t.Fatalf("expected invitee to become a member")
	}

	var msg model.Message
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(msg.Body, "invited") {
		t.Fatalf("expected invited notice, got %q", msg.Body)
	}
}

func TestInvite_Failures(t *testing.T) {
	deps, st := newTestDeps(t)
	r := NewRouter(deps)
	aliceTok := tokenFor(t, deps, "alice")

	w := doJSON(t, r, http.MethodPost, "/chat", aliceTok, nil)
	var session model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Unknown invitee.
	w = doJSON(t, r, http.MethodPost, "/chat/"+session.ID+"/invite", aliceTok, map[string]string{"user_id": "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown invitee, got %d", w.Code)
	}

	// Caller not a member.
	guest := st.CreateGuest()
	guestTok, err := auth.CreateToken(guest.ID, guest.Username, deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	w = doJSON(t, r, http.MethodPost, "/chat/"+session.ID+"/invite", guestTok, map[string]string{"user_id": guest.ID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member caller, got %d", w.Code)
	}
}
