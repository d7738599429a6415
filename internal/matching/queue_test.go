package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(id string) *Session {
	return &Session{
		ID:           id,
		Email:        id + "@example.com",
		Difficulties: Difficulties{Easy: true},
		Topics:       []string{"arrays"},
		ProgLangs:    []string{"go"},
	}
}

func TestQueue_PushPopFIFO(t *testing.T) {
	q := NewQueue()

	var pushed []*Session
	for i := 0; i < 5; i++ {
		s := newTestSession(fmt.Sprintf("user-%d", i))
		pushed = append(pushed, s)
		require.NoError(t, q.Push(s))
	}
	require.Equal(t, 5, q.Count())

	for i := 0; i < 5; i++ {
		front, err := q.PopFront()
		require.NoError(t, err)
		assert.Equal(t, pushed[i].ID, front.ID, "pop %d must return push %d", i, i)
	}
	assert.True(t, q.IsEmpty())
}

func TestQueue_PushDuplicate(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Push(newTestSession("alice")))
	require.NoError(t, q.Push(newTestSession("bob")))

	err := q.Push(newTestSession("alice"))
	assert.ErrorIs(t, err, ErrDuplicateUser)

	// Queue contents unchanged
	assert.Equal(t, 2, q.Count())
	assert.Equal(t, []string{"alice", "bob"}, q.UserIDs())
}

func TestQueue_PeekEmpty(t *testing.T) {
	q := NewQueue()
	_, err := q.Peek(0)
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestQueue_PeekOutOfRange(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Push(newTestSession("alice")))

	_, err := q.Peek(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = q.Peek(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestQueue_PopFrontEmpty(t *testing.T) {
	q := NewQueue()
	_, err := q.PopFront()
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestQueue_PeekDoesNotRemove(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Push(newTestSession("alice")))
	require.NoError(t, q.Push(newTestSession("bob")))

	front, err := q.Peek(0)
	require.NoError(t, err)
	assert.Equal(t, "alice", front.ID)

	second, err := q.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, "bob", second.ID)

	assert.Equal(t, 2, q.Count())
}

func TestQueue_RemoveUserMiddle(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(newTestSession(id)))
	}

	assert.True(t, q.RemoveUser("b"))
	assert.Equal(t, []string{"a", "c"}, q.UserIDs())
	assert.False(t, q.ContainsUser("b"))

	assert.False(t, q.RemoveUser("b"), "removing an absent user reports false")
}

func TestQueue_UserIDsAndEmails(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Push(newTestSession("a")))
	require.NoError(t, q.Push(newTestSession("b")))

	assert.Equal(t, []string{"a", "b"}, q.UserIDs())
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, q.UserEmails())
}
