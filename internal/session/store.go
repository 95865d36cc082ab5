package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrDuplicateSession = staticErr("session already exists")
	ErrNotFound         = staticErr("session not found")
	ErrBetTaken         = staticErr("bet already has a session")
)

// Store is the in-memory session registry and its routing indices.
// Every mutation runs under one mutex so indices and sessions move together.
type Store struct {
	mu sync.Mutex

	sessions   map[string]*Session
	byConn     map[string]string // connection id → session id
	byIdentity map[string]string // normalized identity → connection id
	byBet      map[string]string // bet id → session id
}

func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		byConn:     make(map[string]string),
		byIdentity: make(map[string]string),
		byBet:      make(map[string]string),
	}
}

// Tx is a view of the store valid only inside Atomic.
type Tx struct{ s *Store }

// Atomic runs fn with the store locked.
func (s *Store) Atomic(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

func (s *Store) Create(sess *Session) error {
	return s.Atomic(func(tx *Tx) error { return tx.Create(sess) })
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (*Session, error) {
	var out *Session
	err := s.Atomic(func(tx *Tx) error {
		sess, err := tx.Get(id)
		if err != nil {
			return err
		}
		out = sess.Clone()
		return nil
	})
	return out, err
}

func (s *Store) Remove(id string) {
	_ = s.Atomic(func(tx *Tx) error {
		tx.Remove(id)
		return nil
	})
}

// ListActive snapshots every registered session regardless of status, oldest first.
func (s *Store) ListActive() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) SessionIDForConnection(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byConn[connID]
	return id, ok
}

func (s *Store) ConnectionForIdentity(identity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byIdentity[NormalizeIdentity(identity)]
	return c, ok
}

func (s *Store) SessionIDForBet(betID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byBet[betID]
	return id, ok
}

// CheckConsistency verifies that every index entry points at a live session
// and that connection entries match an occupied slot.
func (s *Store) CheckConsistency() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, id := range s.byConn {
		sess, ok := s.sessions[id]
		if !ok {
			return fmt.Errorf("connection %s maps to missing session %s", conn, id)
		}
		if sess.SlotFor(conn) < 0 {
			return fmt.Errorf("connection %s not seated in session %s", conn, id)
		}
	}
	for ident, conn := range s.byIdentity {
		if _, ok := s.byConn[conn]; !ok {
			return fmt.Errorf("identity %s maps to unbound connection %s", ident, conn)
		}
	}
	for bet, id := range s.byBet {
		if _, ok := s.sessions[id]; !ok {
			return fmt.Errorf("bet %s maps to missing session %s", bet, id)
		}
	}
	return nil
}

// NormalizeIdentity lower-cases hex addresses so lookups ignore checksum casing.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func (tx *Tx) Get(id string) (*Session, error) {
	sess, ok := tx.s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (tx *Tx) Create(sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("create session: empty id")
	}
	if _, ok := tx.s.sessions[sess.ID]; ok {
		return ErrDuplicateSession
	}
	if sess.BetID != "" {
		if _, ok := tx.s.byBet[sess.BetID]; ok {
			return ErrBetTaken
		}
		tx.s.byBet[sess.BetID] = sess.ID
	}
	tx.s.sessions[sess.ID] = sess
	return nil
}

// Remove drops the session and every index entry that refers to it.
func (tx *Tx) Remove(id string) {
	sess, ok := tx.s.sessions[id]
	if !ok {
		return
	}
	for conn, sid := range tx.s.byConn {
		if sid == id {
			tx.unbindConnection(conn)
		}
	}
	if sess.BetID != "" && tx.s.byBet[sess.BetID] == id {
		delete(tx.s.byBet, sess.BetID)
	}
	delete(tx.s.sessions, id)
}

// BindConnection maps connID (and identity, if any) to the session.
func (tx *Tx) BindConnection(connID, sessionID, identity string) error {
	if _, ok := tx.s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	tx.s.byConn[connID] = sessionID
	if key := NormalizeIdentity(identity); key != "" {
		tx.s.byIdentity[key] = connID
	}
	return nil
}

// UnbindConnection removes connID from the connection and identity indices.
func (tx *Tx) UnbindConnection(connID string) {
	tx.unbindConnection(connID)
}

func (tx *Tx) unbindConnection(connID string) {
	delete(tx.s.byConn, connID)
	for ident, c := range tx.s.byIdentity {
		if c == connID {
			delete(tx.s.byIdentity, ident)
		}
	}
}

// SessionForConnection returns the live session bound to connID.
func (tx *Tx) SessionForConnection(connID string) (*Session, bool) {
	id, ok := tx.s.byConn[connID]
	if !ok {
		return nil, false
	}
	sess, ok := tx.s.sessions[id]
	return sess, ok
}

// SessionForBet returns the live session registered for betID.
func (tx *Tx) SessionForBet(betID string) (*Session, bool) {
	id, ok := tx.s.byBet[betID]
	if !ok {
		return nil, false
	}
	sess, ok := tx.s.sessions[id]
	return sess, ok
}

// Connections lists the connections currently bound to sessionID, sorted.
func (tx *Tx) Connections(sessionID string) []string {
	var out []string
	for conn, sid := range tx.s.byConn {
		if sid == sessionID {
			out = append(out, conn)
		}
	}
	sort.Strings(out)
	return out
}
