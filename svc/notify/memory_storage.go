package notify

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type eventKey struct {
	tenantID uuid.UUID
	userID   string
	typeID   string
	channel  string
	eventID  string
}

type batchKey struct {
	tenantID     uuid.UUID
	userID       string
	channel      string
	scheduledFor int64
}

type actionKey struct {
	notificationID uuid.UUID
	actionType     string
}

type prefKey struct {
	tenantID uuid.UUID
	userID   string
	typeID   string
}

type addrKey struct {
	tenantID uuid.UUID
	userID   string
	channel  string
	address  string
}

type typeKey struct {
	tenantID uuid.UUID
	id       string
}

// MemoryStorage is an in-memory Storage for development and tests.
type MemoryStorage struct {
	mu sync.RWMutex

	notifications map[uuid.UUID]Notification
	events        map[eventKey]uuid.UUID
	batches       map[uuid.UUID]Batch
	openBatches   map[batchKey]uuid.UUID
	actions       map[uuid.UUID]Action
	actionIndex   map[actionKey]uuid.UUID
	batchActions  []BatchAction
	preferences   map[prefKey]Preference
	addresses     map[addrKey]ChannelAddress
	types         map[typeKey]NotificationType

	now func() time.Time
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[uuid.UUID]Notification),
		events:        make(map[eventKey]uuid.UUID),
		batches:       make(map[uuid.UUID]Batch),
		openBatches:   make(map[batchKey]uuid.UUID),
		actions:       make(map[uuid.UUID]Action),
		actionIndex:   make(map[actionKey]uuid.UUID),
		preferences:   make(map[prefKey]Preference),
		addresses:     make(map[addrKey]ChannelAddress),
		types:         make(map[typeKey]NotificationType),
		now:           time.Now,
	}
}

func (s *MemoryStorage) CreateNotification(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertNotification(n)
}

func (s *MemoryStorage) insertNotification(n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if n.EventID != "" {
		key := eventKey{n.TenantID, n.UserID, n.TypeID, n.Channel, n.EventID}
		if _, ok := s.events[key]; ok {
			return ErrDuplicateEvent
		}
		s.events[key] = n.ID
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *MemoryStorage) GetNotification(_ context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return &n, nil
}

func (s *MemoryStorage) ListNotifications(_ context.Context, tenantID uuid.UUID, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.TenantID != tenantID || n.UserID != userID {
			continue
		}
		if opts.OnlyUnread && n.Read {
			continue
		}
		if opts.TypeID != "" && n.TypeID != opts.TypeID {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, n.Status) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		out = append(out, n)
	}

	slices.SortFunc(out, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (s *MemoryStorage) ClaimNotification(_ context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	if n.BatchID != nil {
		return nil, ErrBatchedDelivery
	}
	next, err := NotificationLifecycle.Next(n.Status, EventClaim)
	if err != nil {
		return nil, TransitionError(err, ErrDeliveryInProgress)
	}
	n.Status = next
	n.Attempts++
	s.notifications[id] = n
	return &n, nil
}

func (s *MemoryStorage) FinishNotification(_ context.Context, id uuid.UUID, out DeliveryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	event := EventFail
	if out.Success {
		event = EventSucceed
	}
	next, err := NotificationLifecycle.Next(n.Status, event)
	if err != nil {
		return TransitionError(err, ErrInvalidTransition)
	}
	n.Status = next
	if out.Address != "" {
		n.Address = out.Address
	}
	if out.Success {
		at := out.At
		n.SentAt = &at
		n.ProviderMessageID = out.ProviderMessageID
		n.LastError = ""
	} else {
		n.LastError = out.Error
	}
	s.notifications[id] = n
	return nil
}

func (s *MemoryStorage) TransitionNotification(_ context.Context, id uuid.UUID, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	next, err := NotificationLifecycle.Next(n.Status, event)
	if err != nil {
		return TransitionError(err, ErrInvalidTransition)
	}
	n.Status = next
	s.notifications[id] = n
	return nil
}

func (s *MemoryStorage) ListByProviderMessageID(_ context.Context, messageID string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		if messageID != "" && n.ProviderMessageID == messageID {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b Notification) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *MemoryStorage) MarkNotificationRead(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	if n.Read {
		return nil
	}
	n.Read = true
	n.ReadAt = &at
	s.notifications[id] = n
	return nil
}

func (s *MemoryStorage) EnqueueNotification(_ context.Context, n *Notification, scheduledFor time.Time) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.EventID != "" {
		if _, ok := s.events[eventKey{n.TenantID, n.UserID, n.TypeID, n.Channel, n.EventID}]; ok {
			return nil, ErrDuplicateEvent
		}
	}

	key := batchKey{n.TenantID, n.UserID, n.Channel, scheduledFor.UnixNano()}
	var b Batch
	if id, ok := s.openBatches[key]; ok && s.batches[id].Status == BatchPending {
		b = s.batches[id]
	} else {
		b = Batch{
			ID:           uuid.New(),
			TenantID:     n.TenantID,
			UserID:       n.UserID,
			Channel:      n.Channel,
			ScheduledFor: scheduledFor,
			Status:       BatchPending,
			CreatedAt:    s.now(),
		}
		s.batches[b.ID] = b
		s.openBatches[key] = b.ID
	}

	n.BatchID = &b.ID
	n.Status = StatusQueuedForBatch
	if err := s.insertNotification(n); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *MemoryStorage) GetBatch(_ context.Context, id uuid.UUID) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return &b, nil
}

func (s *MemoryStorage) ListBatchMembers(_ context.Context, batchID uuid.UUID) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members(batchID), nil
}

func (s *MemoryStorage) members(batchID uuid.UUID) []Notification {
	var out []Notification
	for _, n := range s.notifications {
		if n.BatchID != nil && *n.BatchID == batchID {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b Notification) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out
}

func (s *MemoryStorage) ListDueBatches(_ context.Context, now time.Time, limit int) ([]Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Batch
	for _, b := range s.batches {
		if b.Status == BatchPending && !b.ScheduledFor.After(now) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b Batch) int { return a.ScheduledFor.Compare(b.ScheduledFor) })
	return paginate(out, 0, limit), nil
}

func (s *MemoryStorage) ClaimBatch(_ context.Context, id uuid.UUID) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	next, err := BatchLifecycle.Next(b.Status, EventClaim)
	if err != nil {
		return nil, TransitionError(err, ErrDeliveryInProgress)
	}
	b.Status = next
	b.Attempts++
	s.batches[id] = b
	delete(s.openBatches, batchKey{b.TenantID, b.UserID, b.Channel, b.ScheduledFor.UnixNano()})
	return &b, nil
}

func (s *MemoryStorage) CompleteBatch(_ context.Context, id uuid.UUID, out DeliveryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	next, err := BatchLifecycle.Next(b.Status, EventSucceed)
	if err != nil {
		return TransitionError(err, ErrInvalidTransition)
	}
	at := out.At
	b.Status = next
	b.SentAt = &at
	b.ProviderMessageID = out.ProviderMessageID
	b.LastError = ""
	s.batches[id] = b

	for _, n := range s.members(id) {
		if n.Status != StatusQueuedForBatch {
			continue
		}
		n.Status = StatusSent
		n.SentAt = &at
		n.ProviderMessageID = out.ProviderMessageID
		n.Address = out.Address
		s.notifications[n.ID] = n
	}
	return nil
}

func (s *MemoryStorage) ReleaseBatch(_ context.Context, id uuid.UUID, errMsg string, maxAttempts int) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	event := EventRelease
	if maxAttempts > 0 && b.Attempts >= maxAttempts {
		event = EventFail
	}
	next, err := BatchLifecycle.Next(b.Status, event)
	if err != nil {
		return nil, TransitionError(err, ErrInvalidTransition)
	}
	b.Status = next
	b.LastError = errMsg
	s.batches[id] = b

	// A released batch keeps its members but accepts no new ones; late
	// arrivals open a fresh batch for the same window.
	if next == BatchPending {
		return &b, nil
	}

	for _, n := range s.members(id) {
		if n.Status != StatusQueuedForBatch {
			continue
		}
		n.Status = StatusFailed
		n.LastError = errMsg
		s.notifications[n.ID] = n
	}
	return &b, nil
}

func (s *MemoryStorage) ClaimAction(_ context.Context, c ActionClaim) (*Action, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := actionKey{c.NotificationID, c.ActionType}
	id, exists := s.actionIndex[key]
	if !exists {
		a := Action{
			ID:             uuid.New(),
			TenantID:       c.TenantID,
			NotificationID: c.NotificationID,
			ActionType:     c.ActionType,
			ActionData:     c.ActionData,
			Status:         ActionPending,
			Attempts:       1,
			PerformedAt:    c.At,
		}
		s.actions[a.ID] = a
		s.actionIndex[key] = a.ID
		return &a, true, nil
	}

	a := s.actions[id]
	switch a.Status {
	case ActionSucceeded:
		if !c.ReclaimSucceeded {
			return &a, false, nil
		}
	case ActionPending:
		if c.StaleAfter <= 0 || c.At.Sub(a.PerformedAt) < c.StaleAfter {
			return &a, false, ErrActionInProgress
		}
	}

	a.Status = ActionPending
	a.ActionData = c.ActionData
	a.Error = ""
	a.Attempts++
	a.PerformedAt = c.At
	s.actions[id] = a
	return &a, true, nil
}

func (s *MemoryStorage) FinishAction(_ context.Context, id uuid.UUID, status ActionStatus, result map[string]any, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.Result = result
	a.Error = errMsg
	a.PerformedAt = at
	s.actions[id] = a
	return nil
}

func (s *MemoryStorage) GetAction(_ context.Context, notificationID uuid.UUID, actionType string) (*Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.actionIndex[actionKey{notificationID, actionType}]
	if !ok {
		return nil, ErrNotFound
	}
	a := s.actions[id]
	return &a, nil
}

func (s *MemoryStorage) CreateBatchAction(_ context.Context, a *BatchAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.batchActions = append(s.batchActions, *a)
	return nil
}

func (s *MemoryStorage) GetPreference(_ context.Context, tenantID uuid.UUID, userID, typeID string) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.preferences[prefKey{tenantID, userID, typeID}]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	p.Channels = slices.Clone(p.Channels)
	return &p, nil
}

func (s *MemoryStorage) ListPreferences(_ context.Context, tenantID uuid.UUID, userID string) ([]Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Preference
	for k, p := range s.preferences {
		if k.tenantID == tenantID && k.userID == userID {
			p.Channels = slices.Clone(p.Channels)
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Preference) int { return strings.Compare(a.TypeID, b.TypeID) })
	return out, nil
}

func (s *MemoryStorage) UpsertPreference(_ context.Context, p *Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prefKey{p.TenantID, p.UserID, p.TypeID}
	now := s.now()
	if existing, ok := s.preferences[key]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	stored := *p
	stored.Channels = slices.Clone(p.Channels)
	s.preferences[key] = stored
	return nil
}

func (s *MemoryStorage) ListEnabledSubscribers(_ context.Context, tenantID uuid.UUID, typeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for k, p := range s.preferences {
		if k.tenantID == tenantID && k.typeID == typeID && p.Enabled {
			out = append(out, k.userID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemoryStorage) GetAddress(_ context.Context, tenantID uuid.UUID, userID, channel, address string) (*ChannelAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.addresses[addrKey{tenantID, userID, channel, NormalizeAddress(address)}]
	if !ok {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

func (s *MemoryStorage) RecordFeedback(_ context.Context, fb AddressFeedback) (*ChannelAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addrKey{fb.TenantID, fb.UserID, fb.Channel, NormalizeAddress(fb.Address)}
	a, ok := s.addresses[key]
	if !ok {
		a = ChannelAddress{
			TenantID: fb.TenantID,
			UserID:   fb.UserID,
			Channel:  fb.Channel,
			Address:  key.address,
		}
	}
	a.ApplyFeedback(fb)
	s.addresses[key] = a
	return &a, nil
}

func (s *MemoryStorage) GetType(_ context.Context, tenantID uuid.UUID, id string) (*NotificationType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.types[typeKey{tenantID, id}]; ok {
		return &t, nil
	}
	if t, ok := s.types[typeKey{uuid.Nil, id}]; ok {
		return &t, nil
	}
	return nil, ErrTypeNotFound
}

func (s *MemoryStorage) ListTypes(_ context.Context, tenantID uuid.UUID) ([]NotificationType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string]NotificationType)
	for k, t := range s.types {
		if k.tenantID != uuid.Nil {
			continue
		}
		byID[k.id] = t
	}
	if tenantID != uuid.Nil {
		for k, t := range s.types {
			if k.tenantID == tenantID {
				byID[k.id] = t
			}
		}
	}

	out := make([]NotificationType, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b NotificationType) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStorage) UpsertType(_ context.Context, t *NotificationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := typeKey{t.TenantID, t.ID}
	if existing, ok := s.types[key]; ok {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.types[key] = *t
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
