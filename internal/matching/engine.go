package matching

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotRegistered is returned for operations referencing a user token that
	// is not in the registry. The gateway maps it to a 4xx response.
	ErrNotRegistered = errors.New("user does not exist in the matching service")

	// ErrNotMatched is returned by confirmation-side operations on a user that
	// has no partner yet.
	ErrNotMatched = errors.New("user is not matched")

	// ErrStateCorrupted signals an internal consistency violation such as
	// asymmetric match references. The engine makes no attempt to self-heal;
	// the gateway surfaces it as a 5xx response.
	ErrStateCorrupted = errors.New("matching state corrupted")
)

// Engine is the single authority over the registry and both queues. It drives
// a session through NotRegistered -> Waiting -> Matched -> removed.
//
// Every exported operation runs under one mutex: the whole engine is a single
// critical section, so concurrent requests can never observe a half-applied
// match or pop the same session twice. State is process-memory only; a restart
// drops all in-flight sessions and clients simply start over.
type Engine struct {
	mu                sync.Mutex
	registry          map[string]*Session
	waitQueue         *Queue
	confirmationQueue *Queue
}

func NewEngine() *Engine {
	return &Engine{
		registry:          make(map[string]*Session),
		waitQueue:         NewQueue(),
		confirmationQueue: NewQueue(),
	}
}

// Register inserts a session into the registry and the wait queue. A token that
// is already registered is silently absorbed, so duplicate start requests are
// not errors.
func (e *Engine) Register(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry[s.ID]; ok {
		return nil
	}
	s.EnqueuedAt = time.Now()
	if err := e.waitQueue.Push(s); err != nil {
		return fmt.Errorf("%w: user %s in wait queue but not registry", ErrStateCorrupted, s.ID)
	}
	e.registry[s.ID] = s
	return nil
}

// IsRegistered reports whether a user with this token is in the matching
// service.
func (e *Engine) IsRegistered(token string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.registry[token]
	return ok
}

// Session returns a snapshot of the session for the given token.
func (e *Engine) Session(token string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.registry[token]
	if !ok {
		return nil, ErrNotRegistered
	}
	return cloneSession(s), nil
}

// IsMatched reports whether the user already has a partner.
func (e *Engine) IsMatched(token string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.registry[token]
	if !ok {
		return false, ErrNotRegistered
	}
	return s.MatchedUserID != "", nil
}

// TryMatchWith attempts to pair the caller with the longest-waiting other
// user. It returns false when the wait queue is empty or when the only
// candidate at the front is the caller itself; the caller stays Waiting and
// nothing changes. On success both sessions move to the confirmation queue.
func (e *Engine) TryMatchWith(token string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	caller, ok := e.registry[token]
	if !ok {
		return false, ErrNotRegistered
	}
	if e.waitQueue.IsEmpty() {
		return false, nil
	}
	front, err := e.waitQueue.Peek(0)
	if err != nil {
		return false, err
	}
	if front.ID == token {
		// A user cannot match with themself.
		return false, nil
	}
	// matchPair removes both sides from the wait queue only once the pairing
	// succeeds, so a failure leaves the queue as it was.
	if err := e.matchPair(front, caller); err != nil {
		return false, err
	}
	return true, nil
}

// matchPair marks two sessions as matched together and moves both from the
// wait queue to the confirmation queue. Both must be unmatched; a violation is
// an engine bug, not a user error. Callers hold e.mu.
func (e *Engine) matchPair(a, b *Session) error {
	if a.MatchedUserID != "" || b.MatchedUserID != "" {
		return fmt.Errorf("%w: matching %s with %s but one is already matched (%q, %q)",
			ErrStateCorrupted, a.ID, b.ID, a.MatchedUserID, b.MatchedUserID)
	}
	log.Printf("[ENGINE] Matching user %s and user %s together", a.ID, b.ID)

	roomID := uuid.NewString()
	now := time.Now()
	a.MatchedUserID = b.ID
	b.MatchedUserID = a.ID
	a.MatchedAt = now
	b.MatchedAt = now
	a.RoomID = roomID
	b.RoomID = roomID
	a.ConfirmationStatus = ConfirmationWaiting
	b.ConfirmationStatus = ConfirmationWaiting

	if err := e.confirmationQueue.Push(a); err != nil {
		return fmt.Errorf("%w: %s already in confirmation queue", ErrStateCorrupted, a.ID)
	}
	if err := e.confirmationQueue.Push(b); err != nil {
		return fmt.Errorf("%w: %s already in confirmation queue", ErrStateCorrupted, b.ID)
	}
	e.waitQueue.RemoveUser(a.ID)
	e.waitQueue.RemoveUser(b.ID)
	return nil
}

// MatchedUser returns a snapshot of the caller's partner session, or nil while
// unmatched.
func (e *Engine) MatchedUser(token string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.registry[token]
	if !ok {
		return nil, ErrNotRegistered
	}
	if s.MatchedUserID == "" {
		return nil, nil
	}
	partner, ok := e.registry[s.MatchedUserID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s matched with unregistered user %s",
			ErrStateCorrupted, token, s.MatchedUserID)
	}
	return cloneSession(partner), nil
}

// MarkReady records that the user is ready to start and reports whether both
// sides of the pair are now ready. Snapshots of both sessions are returned for
// the caller's bookkeeping.
func (e *Engine) MarkReady(token string) (self, partner *Session, bothReady bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.registry[token]
	if !ok {
		return nil, nil, false, ErrNotRegistered
	}
	if s.MatchedUserID == "" {
		return nil, nil, false, ErrNotMatched
	}
	p, ok := e.registry[s.MatchedUserID]
	if !ok || p.MatchedUserID != s.ID {
		return nil, nil, false, fmt.Errorf("%w: asymmetric match between %s and %s",
			ErrStateCorrupted, s.ID, s.MatchedUserID)
	}
	s.IsPeerReady = true
	return cloneSession(s), cloneSession(p), s.IsPeerReady && p.IsPeerReady, nil
}

// SetPairStatus sets the confirmation status on both sides of a pair.
func (e *Engine) SetPairStatus(aToken, bToken string, status ConfirmationStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.registry[aToken]
	if !ok {
		return ErrNotRegistered
	}
	b, ok := e.registry[bToken]
	if !ok {
		return ErrNotRegistered
	}
	a.ConfirmationStatus = status
	b.ConfirmationStatus = status
	return nil
}

// DismissPair clears the match between two users after at least one side
// failed to get ready in time. Both must currently point at each other;
// anything else means the engine corrupted its own pairing state.
func (e *Engine) DismissPair(aToken, bToken string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.registry[aToken]
	if !ok {
		return ErrNotRegistered
	}
	b, ok := e.registry[bToken]
	if !ok {
		return ErrNotRegistered
	}
	if a.MatchedUserID != b.ID || b.MatchedUserID != a.ID {
		return fmt.Errorf("%w: dismissing %s and %s but they are not matched together (%q, %q)",
			ErrStateCorrupted, a.ID, b.ID, a.MatchedUserID, b.MatchedUserID)
	}
	log.Printf("[ENGINE] Dismissing match between user %s and user %s", a.ID, b.ID)
	a.MatchedUserID = ""
	b.MatchedUserID = ""
	a.IsPeerReady = false
	b.IsPeerReady = false
	return nil
}

// CancelMatching removes a waiting user from the service. Unknown tokens are a
// no-op, so a cancel request is always safe to issue. Users already promoted
// to the confirmation queue are outside this operation's contract.
func (e *Engine) CancelMatching(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry[token]; !ok {
		return
	}
	e.waitQueue.RemoveUser(token)
	delete(e.registry, token)
}

// RemoveFromMatching is like CancelMatching but the user must exist.
func (e *Engine) RemoveFromMatching(token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry[token]; !ok {
		return ErrNotRegistered
	}
	if e.waitQueue.ContainsUser(token) {
		e.waitQueue.RemoveUser(token)
	}
	delete(e.registry, token)
	return nil
}

// RemoveFromConfirmation removes a user from the confirmation queue and the
// service, after the pair disbanded or handed off to collaboration.
func (e *Engine) RemoveFromConfirmation(token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry[token]; !ok {
		return ErrNotRegistered
	}
	if e.confirmationQueue.ContainsUser(token) {
		e.confirmationQueue.RemoveUser(token)
	}
	delete(e.registry, token)
	return nil
}

// Len returns the number of users in the wait queue.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waitQueue.Count()
}

// At returns a snapshot of the wait-queue session at the given index.
func (e *Engine) At(index int) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.waitQueue.Peek(index)
	if err != nil {
		return nil, err
	}
	return cloneSession(s), nil
}

// ConfirmationCount returns the number of users awaiting confirmation.
func (e *Engine) ConfirmationCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmationQueue.Count()
}

// WaitingIDs lists the ids of all waiting users, front first.
func (e *Engine) WaitingIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waitQueue.UserIDs()
}

// WaitingEmails lists the emails of all waiting users, front first.
func (e *Engine) WaitingEmails() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waitQueue.UserEmails()
}
