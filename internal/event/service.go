package event

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

// Service turns event drafts into persisted events and fans them out to
// matching webhooks. Emitting never fails the originating mutation: the
// entity write has already been committed by the time a draft reaches here.
type Service struct {
	log        *zap.Logger
	store      *store.Store
	clock      clock.Clock
	genID      *ids.Generator
	dispatcher *Dispatcher
	apiVersion string
}

func NewService(log *zap.Logger, st *store.Store, clk clock.Clock, genID *ids.Generator, dispatcher *Dispatcher, apiVersion string) *Service {
	return &Service{
		log:        log.Named("event.service"),
		store:      st,
		clock:      clk,
		genID:      genID,
		dispatcher: dispatcher,
		apiVersion: apiVersion,
	}
}

// Emit persists each draft as an event and enqueues webhook deliveries.
// Returns the last persisted event for callers that need its id.
func (s *Service) Emit(ctx context.Context, rc identity.RequestContext, drafts ...domain.EventDraft) (*domain.Event, error) {
	var last *domain.Event
	for _, draft := range drafts {
		ev, err := s.emit(ctx, rc, draft)
		if err != nil {
			return nil, err
		}
		last = ev
	}
	return last, nil
}

func (s *Service) emit(ctx context.Context, rc identity.RequestContext, draft domain.EventDraft) (*domain.Event, error) {
	object, err := json.Marshal(draft.Object)
	if err != nil {
		return nil, err
	}

	webhooks, err := s.store.Webhooks.All(ctx, rc.Identity)
	if err != nil {
		return nil, err
	}

	pending := int64(0)
	for _, wh := range webhooks {
		if wh.Matches(draft.Type) {
			pending++
		}
	}

	ev := domain.Event{
		ID:         s.genID.New(ids.PrefixEvent),
		Identity:   rc.Identity,
		Object:     "event",
		APIVersion: s.apiVersion,
		Created:    s.clock.Now(ctx).Unix(),
		Data: domain.EventData{
			Object:             object,
			PreviousAttributes: draft.Previous,
		},
		Livemode:        rc.Livemode,
		PendingWebhooks: pending,
		Request:         rc.RequestID,
		Type:            draft.Type,
	}

	if err := s.store.Events.Add(ctx, &ev); err != nil {
		return nil, err
	}

	s.log.Info("event emitted",
		zap.String("id", ev.ID),
		zap.String("type", ev.Type),
		zap.Int64("pending_webhooks", pending))

	for _, wh := range webhooks {
		if wh.Matches(draft.Type) {
			s.dispatcher.Enqueue(Delivery{
				URL:          wh.URL,
				SharedSecret: wh.SharedSecret,
				Event:        ev,
			})
		}
	}

	return &ev, nil
}

func marshalEvent(ev domain.Event) ([]byte, error) {
	return json.Marshal(ev)
}
