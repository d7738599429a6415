package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"peerprep-matching/internal/matching"
	"peerprep-matching/internal/monitoring"
	"peerprep-matching/internal/storage"

	"github.com/hibiken/asynq"
)

// Event types published on a user's channel.
const (
	EventMatchFound     = "match_found"
	EventPeerReady      = "peer_ready"
	EventMatchConfirmed = "match_confirmed"
	EventMatchDismissed = "match_dismissed"
)

type Event struct {
	Type         string                `json:"type"`
	RoomID       string                `json:"roomId,omitempty"`
	PartnerID    string                `json:"partnerId,omitempty"`
	PartnerEmail string                `json:"partnerEmail,omitempty"`
	Topics       []string              `json:"topics,omitempty"`
	Difficulties []matching.Difficulty `json:"difficulties,omitempty"`
	Reason       string                `json:"reason,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
}

type matchStore interface {
	CreateMatchRecord(ctx context.Context, record *storage.MatchRecord) error
}

type eventPublisher interface {
	PublishUserEvent(ctx context.Context, userID string, event any) error
}

type taskScheduler interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service drives the post-match handshake: it arms the ready timer when a pair
// forms and resolves the pair once both sides confirm, one declines, or the
// timer fires. It only ever speaks to the engine through its public
// operations; the engine exposes the mechanism, this service owns the clock.
type Service struct {
	engine      *matching.Engine
	store       matchStore
	events      eventPublisher
	tasks       taskScheduler
	readyWindow time.Duration
}

func NewService(engine *matching.Engine, store matchStore, events eventPublisher, tasks taskScheduler, readyWindow time.Duration) *Service {
	return &Service{
		engine:      engine,
		store:       store,
		events:      events,
		tasks:       tasks,
		readyWindow: readyWindow,
	}
}

type timeoutPayload struct {
	UserA  string `json:"userA"`
	UserB  string `json:"userB"`
	RoomID string `json:"roomId"`
}

// PairMatched notifies both sides of a fresh pair and schedules the
// confirmation timeout.
func (s *Service) PairMatched(ctx context.Context, a, b *matching.Session) error {
	topics := matching.CommonTopics(a, b)
	difficulties := matching.CommonDifficulties(a, b)

	s.publish(ctx, a.ID, Event{
		Type:         EventMatchFound,
		RoomID:       a.RoomID,
		PartnerID:    b.ID,
		PartnerEmail: b.Email,
		Topics:       topics,
		Difficulties: difficulties,
		Timestamp:    time.Now().UTC(),
	})
	s.publish(ctx, b.ID, Event{
		Type:         EventMatchFound,
		RoomID:       b.RoomID,
		PartnerID:    a.ID,
		PartnerEmail: a.Email,
		Topics:       topics,
		Difficulties: difficulties,
		Timestamp:    time.Now().UTC(),
	})

	payload, err := json.Marshal(timeoutPayload{UserA: a.ID, UserB: b.ID, RoomID: a.RoomID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeConfirmationTimeout, payload)
	if _, err := s.tasks.Enqueue(task, asynq.Queue("confirmation"), asynq.ProcessIn(s.readyWindow)); err != nil {
		return fmt.Errorf("failed to schedule confirmation timeout for %s and %s: %w", a.ID, b.ID, err)
	}
	log.Printf("[CONFIRM] Pair %s/%s matched into room %s, ready window %v", a.ID, b.ID, a.RoomID, s.readyWindow)
	return nil
}

// Ready marks the caller as ready. When the peer is ready too, the pair is
// confirmed, recorded, removed from the service and notified with the room to
// hand off to.
func (s *Service) Ready(ctx context.Context, userToken string) (bool, error) {
	self, partner, bothReady, err := s.engine.MarkReady(userToken)
	if err != nil {
		return false, err
	}

	if !bothReady {
		log.Printf("[CONFIRM] User %s is ready, waiting for %s", self.ID, partner.ID)
		s.publish(ctx, partner.ID, Event{
			Type:      EventPeerReady,
			PartnerID: self.ID,
			Timestamp: time.Now().UTC(),
		})
		return false, nil
	}

	if err := s.resolvePair(ctx, self, partner, storage.OutcomeConfirmed); err != nil {
		return false, err
	}
	return true, nil
}

// Decline dismisses the caller's match and removes both sides from the
// service.
func (s *Service) Decline(ctx context.Context, userToken string) error {
	self, err := s.engine.Session(userToken)
	if err != nil {
		return err
	}
	partner, err := s.engine.MatchedUser(userToken)
	if err != nil {
		return err
	}
	if partner == nil {
		return matching.ErrNotMatched
	}
	return s.resolvePair(ctx, self, partner, storage.OutcomeDeclined)
}

// HandleTimeoutTask is the asynq handler armed by PairMatched. Pairs that
// already resolved make the task a no-op.
func (s *Service) HandleTimeoutTask(ctx context.Context, task *asynq.Task) error {
	var p timeoutPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("invalid confirmation timeout payload: %w", err)
	}

	self, err := s.engine.Session(p.UserA)
	if err != nil {
		// Pair already left the service.
		return nil
	}
	// The room id ties the task to the pair it was armed for. The same two
	// users re-matched into a new room must not be dismissed by the old
	// pair's timer.
	if self.ConfirmationStatus != matching.ConfirmationWaiting || self.MatchedUserID != p.UserB || self.RoomID != p.RoomID {
		return nil
	}
	partner, err := s.engine.Session(p.UserB)
	if err != nil {
		return nil
	}

	log.Printf("[CONFIRM] Pair %s/%s did not get ready within %v, dismissing", p.UserA, p.UserB, s.readyWindow)
	return s.resolvePair(ctx, self, partner, storage.OutcomeTimeout)
}

// resolvePair finishes a pair's confirmation phase. A declined or timed-out
// pair has its match references cleared before both sessions leave the
// service.
func (s *Service) resolvePair(ctx context.Context, self, partner *matching.Session, outcome string) error {
	dismissed := outcome != storage.OutcomeConfirmed
	status := matching.ConfirmationConfirmed
	eventType := EventMatchConfirmed
	reason := ""
	if dismissed {
		status = matching.ConfirmationStatus(outcome)
		eventType = EventMatchDismissed
		reason = outcome
	}

	if err := s.engine.SetPairStatus(self.ID, partner.ID, status); err != nil {
		return err
	}
	if dismissed {
		if err := s.engine.DismissPair(self.ID, partner.ID); err != nil {
			return err
		}
	}

	record := &storage.MatchRecord{
		UserAID:      self.ID,
		UserAEmail:   self.Email,
		UserBID:      partner.ID,
		UserBEmail:   partner.Email,
		RoomID:       self.RoomID,
		Topics:       matching.CommonTopics(self, partner),
		Difficulties: difficultyStrings(matching.CommonDifficulties(self, partner)),
		Outcome:      outcome,
		MatchedAt:    self.MatchedAt,
	}
	if err := s.store.CreateMatchRecord(ctx, record); err != nil {
		log.Printf("[CONFIRM] Failed to persist match record for %s/%s: %v", self.ID, partner.ID, err)
	}

	if err := s.engine.RemoveFromConfirmation(self.ID); err != nil {
		log.Printf("[CONFIRM] Failed to remove user %s from confirmation: %v", self.ID, err)
	}
	if err := s.engine.RemoveFromConfirmation(partner.ID); err != nil {
		log.Printf("[CONFIRM] Failed to remove user %s from confirmation: %v", partner.ID, err)
	}

	for _, pair := range [][2]*matching.Session{{self, partner}, {partner, self}} {
		s.publish(ctx, pair[0].ID, Event{
			Type:      eventType,
			RoomID:    pair[0].RoomID,
			PartnerID: pair[1].ID,
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		})
	}

	monitoring.RecordOutcome(outcome)
	log.Printf("[CONFIRM] Pair %s/%s resolved: %s", self.ID, partner.ID, outcome)
	return nil
}

func (s *Service) publish(ctx context.Context, userID string, event Event) {
	if err := s.events.PublishUserEvent(ctx, userID, event); err != nil {
		log.Printf("[CONFIRM] Failed to publish %s event for user %s: %v", event.Type, userID, err)
	}
}

func difficultyStrings(levels []matching.Difficulty) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, string(l))
	}
	return out
}
