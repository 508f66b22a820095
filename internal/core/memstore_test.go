package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/waypool/waypool-backend/internal/config"
	"github.com/waypool/waypool-backend/internal/models"
)

// memStore is an in-memory Store double. Update takes a snapshot first
// and rolls back on error so aborted transactions leave nothing behind,
// matching the contract the coordinator relies on.
type memStore struct {
	mu     sync.Mutex
	rides  map[uint]models.RideRequest // stored without refs
	refs   map[uint]models.ConversationRef
	convs  map[uint]models.Conversation
	users  map[uint]models.User
	nextID uint
}

func newMemStore() *memStore {
	return &memStore{
		rides: make(map[uint]models.RideRequest),
		refs:  make(map[uint]models.ConversationRef),
		convs: make(map[uint]models.Conversation),
		users: make(map[uint]models.User),
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) assembleRide(id uint) *models.RideRequest {
	ride, ok := m.rides[id]
	if !ok {
		return nil
	}
	var refIDs []uint
	for refID, ref := range m.refs {
		if ref.RideID == id {
			refIDs = append(refIDs, refID)
		}
	}
	sort.Slice(refIDs, func(i, j int) bool { return refIDs[i] < refIDs[j] })
	ride.Refs = make([]models.ConversationRef, 0, len(refIDs))
	for _, refID := range refIDs {
		ride.Refs = append(ride.Refs, m.refs[refID])
	}
	if owner, ok := m.users[ride.OwnerID]; ok {
		ride.Owner = &owner
	}
	return &ride
}

func (m *memStore) assembleConv(id uint) *models.Conversation {
	conv, ok := m.convs[id]
	if !ok {
		return nil
	}
	msgs := make([]models.Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	conv.Messages = msgs
	return &conv
}

func (m *memStore) RideByID(ctx context.Context, id uint) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assembleRide(id), nil
}

func (m *memStore) RideByOwner(ctx context.Context, ownerID uint) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{m}).RideByOwner(ownerID)
}

func (m *memStore) CandidateRides(ctx context.Context, dest models.Destination, from, to time.Time) ([]models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RideRequest
	for id, ride := range m.rides {
		if ride.Destination != dest || ride.Status == models.RideStatusConfirmed {
			continue
		}
		if ride.DepartureTime.Before(from) || ride.DepartureTime.After(to) {
			continue
		}
		out = append(out, *m.assembleRide(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ConversationByID(ctx context.Context, id uint) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assembleConv(id), nil
}

func (m *memStore) Update(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.snapshot()
	if err := fn(&memTx{m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	rides  map[uint]models.RideRequest
	refs   map[uint]models.ConversationRef
	convs  map[uint]models.Conversation
	nextID uint
}

func (m *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		rides:  make(map[uint]models.RideRequest, len(m.rides)),
		refs:   make(map[uint]models.ConversationRef, len(m.refs)),
		convs:  make(map[uint]models.Conversation, len(m.convs)),
		nextID: m.nextID,
	}
	for id, ride := range m.rides {
		snap.rides[id] = ride
	}
	for id, ref := range m.refs {
		snap.refs[id] = ref
	}
	for id, conv := range m.convs {
		msgs := make([]models.Message, len(conv.Messages))
		copy(msgs, conv.Messages)
		conv.Messages = msgs
		snap.convs[id] = conv
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.rides = snap.rides
	m.refs = snap.refs
	m.convs = snap.convs
	m.nextID = snap.nextID
}

type memTx struct {
	m *memStore
}

func (t *memTx) LockRides(ids ...uint) (map[uint]*models.RideRequest, error) {
	out := make(map[uint]*models.RideRequest, len(ids))
	for _, id := range ids {
		if ride := t.m.assembleRide(id); ride != nil {
			out[id] = ride
		}
	}
	return out, nil
}

func (t *memTx) RideByOwner(ownerID uint) (*models.RideRequest, error) {
	var ids []uint
	for id, ride := range t.m.rides {
		if ride.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return t.m.assembleRide(ids[0]), nil
}

func (t *memTx) ConversationByID(id uint) (*models.Conversation, error) {
	return t.m.assembleConv(id), nil
}

func (t *memTx) CreateRide(ride *models.RideRequest) error {
	ride.ID = t.m.id()
	ride.CreatedAt = time.Now()
	stored := *ride
	stored.Refs = nil
	stored.Owner = nil
	t.m.rides[ride.ID] = stored
	return nil
}

func (t *memTx) SetRideStatus(rideID uint, status models.RideStatus) error {
	ride := t.m.rides[rideID]
	ride.Status = status
	t.m.rides[rideID] = ride
	return nil
}

func (t *memTx) DeleteRide(rideID uint) error {
	delete(t.m.rides, rideID)
	return nil
}

func (t *memTx) CreateConversation(conv *models.Conversation) error {
	conv.ID = t.m.id()
	conv.CreatedAt = time.Now()
	t.m.convs[conv.ID] = *conv
	return nil
}

func (t *memTx) CreateRef(ref *models.ConversationRef) error {
	ref.ID = t.m.id()
	ref.CreatedAt = time.Now()
	t.m.refs[ref.ID] = *ref
	return nil
}

func (t *memTx) SaveRef(ref *models.ConversationRef) error {
	stored := t.m.refs[ref.ID]
	stored.Status = ref.Status
	t.m.refs[ref.ID] = stored
	return nil
}

func (t *memTx) DeleteRef(refID uint) error {
	delete(t.m.refs, refID)
	return nil
}

func (t *memTx) AppendMessage(msg *models.Message) error {
	msg.ID = t.m.id()
	msg.CreatedAt = time.Now()
	conv := t.m.convs[msg.ConversationID]
	conv.Messages = append(conv.Messages, *msg)
	t.m.convs[msg.ConversationID] = conv
	return nil
}

func (t *memTx) TrimMessages(conversationID uint, keep int) error {
	conv := t.m.convs[conversationID]
	if len(conv.Messages) > keep {
		conv.Messages = conv.Messages[len(conv.Messages)-keep:]
		t.m.convs[conversationID] = conv
	}
	return nil
}

func (t *memTx) MessageCount(conversationID uint) (int64, error) {
	return int64(len(t.m.convs[conversationID].Messages)), nil
}

// recordingNotifier captures published events in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) byKind(kind EventKind) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, ev := range n.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// memQuota is an unlimited-unless-set quota double.
type memQuota struct {
	limit  int
	counts map[uint]int
}

func newMemQuota(limit int) *memQuota {
	return &memQuota{limit: limit, counts: make(map[uint]int)}
}

func (q *memQuota) TakeRideSlot(ctx context.Context, ownerID uint) (bool, error) {
	q.counts[ownerID]++
	return q.limit <= 0 || q.counts[ownerID] <= q.limit, nil
}

var testBase = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func testSettings() config.Settings {
	return config.Settings{
		MatchWindow:     45 * time.Minute,
		MaxMatches:      20,
		ExpiryBuffer:    2 * time.Hour,
		MessageCap:      100,
		MaxMessageLen:   500,
		DailyRideQuota:  10,
		SlotGranularity: 5 * time.Minute,
		MaxAdvance:      7 * 24 * time.Hour,
	}
}

func newTestService(cfg config.Settings) (*Service, *memStore, *recordingNotifier) {
	st := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewService(st, cfg, notifier, newMemQuota(cfg.DailyRideQuota))
	svc.now = func() time.Time { return testBase }
	return svc, st, notifier
}

// seedRide inserts a ride directly, bypassing quota and validation.
func seedRide(st *memStore, ownerID uint, dest models.Destination, departure time.Time) *models.RideRequest {
	ride := &models.RideRequest{
		OwnerID:       ownerID,
		Destination:   dest,
		DepartureTime: departure,
		Status:        models.RideStatusAvailable,
	}
	_ = st.Update(context.Background(), func(tx Tx) error {
		return tx.CreateRide(ride)
	})
	return ride
}

// refPair returns the two mirrored refs of a conversation, in (a, b)
// participant order.
func refPair(st *memStore, convID uint) (*models.ConversationRef, *models.ConversationRef) {
	st.mu.Lock()
	defer st.mu.Unlock()
	conv, ok := st.convs[convID]
	if !ok {
		return nil, nil
	}
	var a, b *models.ConversationRef
	for id := range st.refs {
		ref := st.refs[id]
		if ref.ConversationID != convID {
			continue
		}
		if ref.RideID == conv.RideAID {
			a = &ref
		} else if ref.RideID == conv.RideBID {
			b = &ref
		}
	}
	return a, b
}
