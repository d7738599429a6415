package confirm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"peerprep-matching/internal/matching"
	"peerprep-matching/internal/storage"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records []*storage.MatchRecord
}

func (f *fakeStore) CreateMatchRecord(ctx context.Context, record *storage.MatchRecord) error {
	f.records = append(f.records, record)
	return nil
}

type publishedEvent struct {
	userID string
	event  Event
}

type fakeEvents struct {
	published []publishedEvent
}

func (f *fakeEvents) PublishUserEvent(ctx context.Context, userID string, event any) error {
	f.published = append(f.published, publishedEvent{userID: userID, event: event.(Event)})
	return nil
}

func (f *fakeEvents) eventsFor(userID string) []Event {
	var out []Event
	for _, p := range f.published {
		if p.userID == userID {
			out = append(out, p.event)
		}
	}
	return out
}

type fakeScheduler struct {
	tasks []*asynq.Task
}

func (f *fakeScheduler) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func setupService(t *testing.T) (*Service, *matching.Engine, *fakeStore, *fakeEvents, *fakeScheduler) {
	t.Helper()
	engine := matching.NewEngine()
	store := &fakeStore{}
	events := &fakeEvents{}
	tasks := &fakeScheduler{}
	svc := NewService(engine, store, events, tasks, 30*time.Second)
	return svc, engine, store, events, tasks
}

func registerPair(t *testing.T, engine *matching.Engine) (a, b *matching.Session) {
	t.Helper()
	require.NoError(t, engine.Register(&matching.Session{
		ID: "alice", Email: "alice@example.com",
		Difficulties: matching.Difficulties{Easy: true, Medium: true},
		Topics:       []string{"arrays", "graphs"},
	}))
	require.NoError(t, engine.Register(&matching.Session{
		ID: "bob", Email: "bob@example.com",
		Difficulties: matching.Difficulties{Medium: true},
		Topics:       []string{"graphs"},
	}))
	matched, err := engine.TryMatchWith("bob")
	require.NoError(t, err)
	require.True(t, matched)

	a, err = engine.Session("alice")
	require.NoError(t, err)
	b, err = engine.Session("bob")
	require.NoError(t, err)
	return a, b
}

func TestService_PairMatched(t *testing.T) {
	svc, engine, _, events, tasks := setupService(t)
	a, b := registerPair(t, engine)

	require.NoError(t, svc.PairMatched(context.Background(), a, b))

	aliceEvents := events.eventsFor("alice")
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMatchFound, aliceEvents[0].Type)
	assert.Equal(t, "bob", aliceEvents[0].PartnerID)
	assert.Equal(t, a.RoomID, aliceEvents[0].RoomID)
	assert.Equal(t, []string{"graphs"}, aliceEvents[0].Topics)
	assert.Equal(t, []matching.Difficulty{matching.DifficultyMedium}, aliceEvents[0].Difficulties)

	bobEvents := events.eventsFor("bob")
	require.Len(t, bobEvents, 1)
	assert.Equal(t, "alice", bobEvents[0].PartnerID)

	require.Len(t, tasks.tasks, 1)
	assert.Equal(t, TypeConfirmationTimeout, tasks.tasks[0].Type())

	var payload timeoutPayload
	require.NoError(t, json.Unmarshal(tasks.tasks[0].Payload(), &payload))
	assert.Equal(t, "alice", payload.UserA)
	assert.Equal(t, "bob", payload.UserB)
	assert.Equal(t, a.RoomID, payload.RoomID)
}

func TestService_ReadyFirstSideWaits(t *testing.T) {
	svc, engine, store, events, _ := setupService(t)
	registerPair(t, engine)

	confirmed, err := svc.Ready(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Empty(t, store.records)

	bobEvents := events.eventsFor("bob")
	require.Len(t, bobEvents, 1)
	assert.Equal(t, EventPeerReady, bobEvents[0].Type)
}

func TestService_ReadyBothSidesConfirms(t *testing.T) {
	svc, engine, store, events, _ := setupService(t)
	a, _ := registerPair(t, engine)

	confirmed, err := svc.Ready(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, confirmed)

	confirmed, err = svc.Ready(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, confirmed)

	// Both sessions left the service.
	assert.False(t, engine.IsRegistered("alice"))
	assert.False(t, engine.IsRegistered("bob"))
	assert.Equal(t, 0, engine.ConfirmationCount())

	require.Len(t, store.records, 1)
	record := store.records[0]
	assert.Equal(t, storage.OutcomeConfirmed, record.Outcome)
	assert.Equal(t, a.RoomID, record.RoomID)
	assert.Equal(t, []string{"graphs"}, record.Topics)
	assert.Equal(t, []string{"medium"}, record.Difficulties)

	aliceEvents := events.eventsFor("alice")
	require.NotEmpty(t, aliceEvents)
	last := aliceEvents[len(aliceEvents)-1]
	assert.Equal(t, EventMatchConfirmed, last.Type)
	assert.Equal(t, a.RoomID, last.RoomID)
}

func TestService_ReadyUnknownToken(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	_, err := svc.Ready(context.Background(), "ghost")
	assert.ErrorIs(t, err, matching.ErrNotRegistered)
}

func TestService_ReadyUnmatched(t *testing.T) {
	svc, engine, _, _, _ := setupService(t)
	require.NoError(t, engine.Register(&matching.Session{ID: "solo", Email: "solo@example.com"}))

	_, err := svc.Ready(context.Background(), "solo")
	assert.ErrorIs(t, err, matching.ErrNotMatched)
}

func TestService_Decline(t *testing.T) {
	svc, engine, store, events, _ := setupService(t)
	registerPair(t, engine)

	require.NoError(t, svc.Decline(context.Background(), "bob"))

	assert.False(t, engine.IsRegistered("alice"))
	assert.False(t, engine.IsRegistered("bob"))

	require.Len(t, store.records, 1)
	assert.Equal(t, storage.OutcomeDeclined, store.records[0].Outcome)

	aliceEvents := events.eventsFor("alice")
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMatchDismissed, aliceEvents[0].Type)
	assert.Equal(t, storage.OutcomeDeclined, aliceEvents[0].Reason)
}

func TestService_HandleTimeoutTaskDismisses(t *testing.T) {
	svc, engine, store, events, _ := setupService(t)
	a, _ := registerPair(t, engine)

	payload, err := json.Marshal(timeoutPayload{UserA: "alice", UserB: "bob", RoomID: a.RoomID})
	require.NoError(t, err)
	task := asynq.NewTask(TypeConfirmationTimeout, payload)

	require.NoError(t, svc.HandleTimeoutTask(context.Background(), task))

	assert.False(t, engine.IsRegistered("alice"))
	assert.False(t, engine.IsRegistered("bob"))

	require.Len(t, store.records, 1)
	assert.Equal(t, storage.OutcomeTimeout, store.records[0].Outcome)

	for _, user := range []string{"alice", "bob"} {
		userEvents := events.eventsFor(user)
		require.Len(t, userEvents, 1)
		assert.Equal(t, EventMatchDismissed, userEvents[0].Type)
		assert.Equal(t, storage.OutcomeTimeout, userEvents[0].Reason)
	}
}

func TestService_HandleTimeoutTaskStale(t *testing.T) {
	svc, engine, store, _, _ := setupService(t)
	a, _ := registerPair(t, engine)

	payload, err := json.Marshal(timeoutPayload{UserA: "alice", UserB: "bob", RoomID: a.RoomID})
	require.NoError(t, err)

	// Pair resolves before the timer fires.
	_, err = svc.Ready(context.Background(), "alice")
	require.NoError(t, err)
	_, err = svc.Ready(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, store.records, 1)

	task := asynq.NewTask(TypeConfirmationTimeout, payload)
	require.NoError(t, svc.HandleTimeoutTask(context.Background(), task))

	// No second record, no dismissal of a pair that already confirmed.
	assert.Len(t, store.records, 1)
}

func TestService_HandleTimeoutTaskIgnoresRematchedPair(t *testing.T) {
	svc, engine, store, _, _ := setupService(t)
	first, _ := registerPair(t, engine)

	payload, err := json.Marshal(timeoutPayload{UserA: "alice", UserB: "bob", RoomID: first.RoomID})
	require.NoError(t, err)

	// The first pair resolves, then the same two users match again into a new
	// room before the first pair's timer fires.
	require.NoError(t, svc.Decline(context.Background(), "bob"))
	second, _ := registerPair(t, engine)
	require.NotEqual(t, first.RoomID, second.RoomID)

	task := asynq.NewTask(TypeConfirmationTimeout, payload)
	require.NoError(t, svc.HandleTimeoutTask(context.Background(), task))

	// The fresh pair is untouched and no timeout record was written for it.
	assert.True(t, engine.IsRegistered("alice"))
	assert.True(t, engine.IsRegistered("bob"))
	assert.Equal(t, 2, engine.ConfirmationCount())
	require.Len(t, store.records, 1)
	assert.Equal(t, storage.OutcomeDeclined, store.records[0].Outcome)
}
