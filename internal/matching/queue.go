package matching

import (
	"errors"
)

var (
	// ErrDuplicateUser is returned when pushing a session whose id is already
	// present in the queue.
	ErrDuplicateUser = errors.New("this user is already matching")

	// ErrEmptyQueue is returned by Peek and PopFront on an empty queue. Callers
	// are expected to check IsEmpty first.
	ErrEmptyQueue = errors.New("matching queue is empty")

	// ErrIndexOutOfRange is returned by Peek when the index does not point at a
	// queued session.
	ErrIndexOutOfRange = errors.New("queue index out of range")
)

// Queue is an ordered holding area for sessions awaiting an operation. The only
// ordering contract is insertion order: the front is the longest-waiting user.
// It does not own its sessions and performs no compatibility checks.
type Queue struct {
	sessions []*Session
}

func NewQueue() *Queue {
	return &Queue{sessions: []*Session{}}
}

// Push appends a session to the back of the queue.
func (q *Queue) Push(s *Session) error {
	if q.ContainsUser(s.ID) {
		return ErrDuplicateUser
	}
	q.sessions = append(q.sessions, s)
	return nil
}

// Peek returns the session at position index without removing it. Index 0 is
// the front.
func (q *Queue) Peek(index int) (*Session, error) {
	if q.IsEmpty() {
		return nil, ErrEmptyQueue
	}
	if index < 0 || index >= len(q.sessions) {
		return nil, ErrIndexOutOfRange
	}
	return q.sessions[index], nil
}

// PopFront removes and returns the oldest session.
func (q *Queue) PopFront() (*Session, error) {
	if q.IsEmpty() {
		return nil, ErrEmptyQueue
	}
	front := q.sessions[0]
	q.sessions = append(q.sessions[:0], q.sessions[1:]...)
	return front, nil
}

// RemoveUser removes the session with the given id wherever it sits in the
// queue. It reports whether a session was removed.
func (q *Queue) RemoveUser(id string) bool {
	for i, s := range q.sessions {
		if s.ID == id {
			q.sessions = append(q.sessions[:i], q.sessions[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Count() int {
	return len(q.sessions)
}

func (q *Queue) IsEmpty() bool {
	return len(q.sessions) == 0
}

func (q *Queue) ContainsUser(id string) bool {
	for _, s := range q.sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (q *Queue) UserIDs() []string {
	ids := make([]string, 0, len(q.sessions))
	for _, s := range q.sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func (q *Queue) UserEmails() []string {
	emails := make([]string, 0, len(q.sessions))
	for _, s := range q.sessions {
		emails = append(emails, s.Email)
	}
	return emails
}
