package notify

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/email"
	"github.com/dmitrymomot/courier/pkg/logger"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeResolver struct {
	mu          sync.Mutex
	users       map[string]User
	subscribers map[string][]string
	denied      map[string]bool
}

func newFakeResolver(users ...User) *fakeResolver {
	r := &fakeResolver{
		users:       make(map[string]User),
		subscribers: make(map[string][]string),
		denied:      make(map[string]bool),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeResolver) GetUser(_ context.Context, _ uuid.UUID, userID string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *fakeResolver) ListUsers(_ context.Context, _ uuid.UUID) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *fakeResolver) GetUserChannelAddress(_ context.Context, _ uuid.UUID, userID, channel string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	if channel != ChannelEmail {
		return "", nil
	}
	return u.Email, nil
}

func (r *fakeResolver) GetSubscribers(_ context.Context, _ uuid.UUID, typeID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.subscribers[typeID]), nil
}

func (r *fakeResolver) UserMatchesConditions(_ context.Context, _ uuid.UUID, userID string, cond SubscriptionConditions) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	return cond.Matches(u), nil
}

func (r *fakeResolver) CreateDataAccessChecker(_ context.Context, _ uuid.UUID, userID string) (AccessChecker, error) {
	r.mu.Lock()
	denied := r.denied[userID]
	r.mu.Unlock()
	return func(context.Context, string, any) (bool, error) {
		return !denied, nil
	}, nil
}

type renderCall struct {
	templateID string
	data       map[string]any
}

type recordingRenderer struct {
	mu    sync.Mutex
	calls []renderCall
}

func (r *recordingRenderer) Render(_ context.Context, templateID string, data map[string]any) (Rendered, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{templateID: templateID, data: data})
	return Rendered{Subject: "subject: " + templateID, Body: "<p>" + templateID + "</p>"}, nil
}

func (r *recordingRenderer) last(t *testing.T) renderCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls, "renderer was never called")
	return r.calls[len(r.calls)-1]
}

// linkToken extracts the token query parameter of the named action link.
func (c renderCall) linkToken(t *testing.T, action string) string {
	t.Helper()
	links, ok := c.data["links"].(map[string]string)
	require.True(t, ok, "links missing from render data")
	raw, ok := links[action]
	require.True(t, ok, "no %s link", action)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type countingProvider struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (p *countingProvider) Send(_ context.Context, msg Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, msg)
	return fmt.Sprintf("msg-%d", len(p.sent)), nil
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func (p *countingProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (s *fakeEmailSender) Send(_ context.Context, msg email.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("email-%d", len(s.sent)), nil
}

const typeTaskAssigned = "task.assigned"

type testEnv struct {
	tenant   uuid.UUID
	clock    *testClock
	store    *MemoryStorage
	resolver *fakeResolver
	renderer *recordingRenderer
	provider *countingProvider
	registry *Registry
	catalog  *Catalog
	tokens   *ActionTokenService
	prefs    *PreferenceService
	delivery *DeliveryService
	service  *Service
	flusher  *Flusher
	actions  *ActionService
}

func newTestEnv(t *testing.T, users ...User) *testEnv {
	t.Helper()

	ctx := context.Background()
	log := logger.Noop()
	e := &testEnv{
		tenant:   uuid.New(),
		clock:    newTestClock(),
		store:    NewMemoryStorage(),
		resolver: newFakeResolver(users...),
		renderer: &recordingRenderer{},
		provider: &countingProvider{},
	}
	e.store.now = e.clock.Now

	ch := NewChannel(ChannelEmail, e.provider, ChannelDeps{
		Resolver:  e.resolver,
		Addresses: e.store,
		Renderer:  e.renderer,
	}, WithChannelLogger(log))

	var err error
	e.registry, err = NewRegistry(ch)
	require.NoError(t, err)

	e.catalog = NewCatalog(e.store, WithCatalogChannels(e.registry), WithCatalogLogger(log))
	_, err = e.catalog.Seed(ctx, []NotificationType{{
		ID:              typeTaskAssigned,
		Name:            "Task assigned",
		DefaultChannels: []string{ChannelEmail},
		Actions:         []string{"approve"},
	}})
	require.NoError(t, err)

	e.tokens, err = NewActionTokenService("test-secret", WithTokenClock(e.clock.Now))
	require.NoError(t, err)

	e.prefs = NewPreferenceService(e.store, e.catalog, e.registry,
		WithPreferenceLogger(log), WithPreferenceClock(e.clock.Now))
	e.delivery = NewDeliveryService(e.store, e.registry, e.resolver, e.catalog,
		WithDeliveryLogger(log),
		WithDeliveryClock(e.clock.Now),
		WithActionTokens(e.tokens, ActionLinks("https://app.test")),
	)
	e.service = NewService(e.store, e.catalog, e.prefs, e.resolver, e.delivery, e.registry,
		WithServiceLogger(log), WithServiceClock(e.clock.Now))
	e.flusher = NewFlusher(e.store, e.delivery,
		WithFlusherLogger(log), WithFlusherClock(e.clock.Now))
	e.actions = NewActionService(e.store, e.tokens, e.delivery,
		WithActionLogger(log),
		WithActionClock(e.clock.Now),
		WithActionHandlers(NewUnsubscribeHandler(e.prefs), NewMarkReadHandler(e.delivery)),
	)
	return e
}

// sendTask triggers task.assigned for one recipient.
func (e *testEnv) sendTask(t *testing.T, userID, eventID string) SendResult {
	t.Helper()
	res, err := e.service.Send(context.Background(), SendRequest{
		TenantID:   e.tenant,
		TypeID:     typeTaskAssigned,
		Payload:    map[string]any{"task_title": "Review Q3 report", "project_id": "p-1"},
		Recipients: []string{userID},
		EventID:    eventID,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) notifications(t *testing.T, userID string) []Notification {
	t.Helper()
	ns, err := e.store.ListNotifications(context.Background(), e.tenant, userID, ListOptions{})
	require.NoError(t, err)
	return ns
}

// batchHourly switches userID to hourly digests for task.assigned.
func (e *testEnv) batchHourly(t *testing.T, userID string) {
	t.Helper()
	_, err := e.prefs.Subscribe(context.Background(), SubscribeInput{
		TenantID:      e.tenant,
		UserID:        userID,
		TypeID:        typeTaskAssigned,
		Channels:      []string{ChannelEmail},
		Frequency:     FrequencyBatched,
		BatchInterval: time.Hour,
	})
	require.NoError(t, err)
}

var (
	alice = User{ID: "alice", Name: "Alice", Email: "alice@example.com", Roles: []string{"manager"}}
	bob   = User{ID: "bob", Name: "Bob", Email: "bob@example.com"}
	carol = User{ID: "carol", Name: "Carol", Email: "carol@example.com", Roles: []string{"manager"}, ManagerID: "alice"}
	dave  = User{ID: "dave", Name: "Dave"}
)
