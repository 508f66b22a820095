package core

import (
	"context"
	"strings"
	"time"

	"github.com/waypool/waypool-backend/internal/models"
)

// ConversationSummary is one row of a ride's conversation listing.
type ConversationSummary struct {
	ConversationID    uint              `json:"conversationId"`
	CounterpartRideID uint              `json:"counterpartRideId"`
	CounterpartName   string            `json:"counterpart"`
	MyStatus          models.RefStatus  `json:"myStatus"`
	OtherPartyStatus  models.RefStatus  `json:"otherPartyStatus"`
	LastMessage       *models.Message   `json:"lastMessage,omitempty"`
	ExpiresAt         time.Time         `json:"expiresAt"`
}

// ListConversations summarizes every pairing the owner's ride holds, in
// ref order. Pairings whose counterpart or conversation expired away
// are skipped rather than surfaced half-broken; the next write through
// them cleans them up.
func (s *Service) ListConversations(ctx context.Context, ownerID uint) ([]ConversationSummary, error) {
	ride, err := s.store.RideByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return []ConversationSummary{}, nil
	}

	summaries := make([]ConversationSummary, 0, len(ride.Refs))
	for i := range ride.Refs {
		ref := &ride.Refs[i]
		conv, err := s.store.ConversationByID(ctx, ref.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			continue
		}
		counterpart, err := s.store.RideByID(ctx, ref.CounterpartRideID)
		if err != nil {
			return nil, err
		}
		if counterpart == nil {
			continue
		}

		summary := ConversationSummary{
			ConversationID:    conv.ID,
			CounterpartRideID: counterpart.ID,
			MyStatus:          ref.Status,
			ExpiresAt:         conv.ExpiresAt,
		}
		if counterpart.Owner != nil {
			summary.CounterpartName = counterpart.Owner.Username
		}
		if mirror := counterpart.RefFor(conv.ID); mirror != nil {
			summary.OtherPartyStatus = mirror.Status
		}
		if n := len(conv.Messages); n > 0 {
			summary.LastMessage = &conv.Messages[n-1]
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// SendMessage appends a chat message to a conversation the actor's ride
// participates in. Sends are rejected once the conversation is past its
// expiry; the message list is bounded, dropping the oldest entries once
// the cap is exceeded.
func (s *Service) SendMessage(ctx context.Context, actorUserID, conversationID uint, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationErr("invalid_input", "message text is empty")
	}
	if s.cfg.MaxMessageLen > 0 && len(text) > s.cfg.MaxMessageLen {
		return nil, validationErr("too_long", "message exceeds %d characters", s.cfg.MaxMessageLen)
	}

	var (
		msg    *models.Message
		events []Event
	)
	err := s.store.Update(ctx, func(tx Tx) error {
		msg, events = nil, nil

		conv, err := tx.ConversationByID(conversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return notFoundErr("not_found", "conversation not found")
		}
		actor, err := tx.RideByOwner(actorUserID)
		if err != nil {
			return err
		}
		if actor == nil || !conv.HasRide(actor.ID) {
			return unauthorizedErr("not_participant", "you are not part of this conversation")
		}
		if s.now().After(conv.ExpiresAt) {
			return conflictErr("expired", "this conversation has expired")
		}

		if s.cfg.MessageCap <= 0 {
			return conflictErr("full", "this conversation accepts no messages")
		}
		count, err := tx.MessageCount(conv.ID)
		if err != nil {
			return err
		}

		msg = &models.Message{ConversationID: conv.ID, SenderID: actorUserID, Text: text}
		if err := tx.AppendMessage(msg); err != nil {
			return err
		}
		// Bounded list: past the cap the oldest messages go first.
		if count+1 > int64(s.cfg.MessageCap) {
			if err := tx.TrimMessages(conv.ID, s.cfg.MessageCap); err != nil {
				return err
			}
		}
		events = append(events, Event{
			ConversationID: conv.ID,
			Kind:           EventMessageAppended,
			Message:        msg,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(events)
	return msg, nil
}
