package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/async"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/validator"
)

// DefaultActionStaleAfter lets a pending action row left by a crashed worker
// be claimed again.
const DefaultActionStaleAfter = 5 * time.Minute

// ActionInput is what a handler acts on.
type ActionInput struct {
	Notification *Notification
	ActionType   string
	ActionData   map[string]any
	ViaToken     bool
}

// ActionHandler performs the side effect of one action type.
type ActionHandler interface {
	Type() string
	// Idempotent handlers run at most once successfully per notification;
	// later calls get the stored result.
	Idempotent() bool
	Handle(ctx context.Context, in ActionInput) (map[string]any, error)
}

// ActionResult is returned to the caller of an action.
type ActionResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}

// ActionRequest is an authenticated action on a notification.
type ActionRequest struct {
	TenantID       uuid.UUID
	UserID         string
	NotificationID uuid.UUID
	ActionType     string
	ActionData     map[string]any
}

// BatchActionRequest is an authenticated action on every batch member.
type BatchActionRequest struct {
	TenantID   uuid.UUID
	UserID     string
	BatchID    uuid.UUID
	ActionType string
	ActionData map[string]any
}

// ItemResult is the outcome for one batch member.
type ItemResult struct {
	NotificationID uuid.UUID      `json:"notification_id"`
	Success        bool           `json:"success"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// BatchActionResult aggregates per-member outcomes.
type BatchActionResult struct {
	Success   bool         `json:"success"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// ActionStoreSet is the storage ActionService needs.
type ActionStoreSet interface {
	ActionStore
	NotificationStore
	BatchStore
}

// ActionService performs actions from the UI and from signed email links.
type ActionService struct {
	store      ActionStoreSet
	tokens     *ActionTokenService
	delivery   *DeliveryService
	runner     *async.Runner
	now        func() time.Time
	logger     *slog.Logger
	staleAfter time.Duration

	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

// ActionOption configures an ActionService.
type ActionOption func(*ActionService)

// WithActionLogger sets the logger.
func WithActionLogger(l *slog.Logger) ActionOption {
	return func(s *ActionService) {
		s.logger = l
	}
}

// WithActionClock overrides time.Now.
func WithActionClock(now func() time.Time) ActionOption {
	return func(s *ActionService) {
		s.now = now
	}
}

// WithBackgroundRunner runs post-action side tasks, such as marking the
// notification read after a link click.
func WithBackgroundRunner(r *async.Runner) ActionOption {
	return func(s *ActionService) {
		s.runner = r
	}
}

// WithActionHandlers registers handlers at construction.
func WithActionHandlers(handlers ...ActionHandler) ActionOption {
	return func(s *ActionService) {
		for _, h := range handlers {
			s.handlers[h.Type()] = h
		}
	}
}

// WithActionStaleAfter overrides DefaultActionStaleAfter.
func WithActionStaleAfter(d time.Duration) ActionOption {
	return func(s *ActionService) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// NewActionService creates an action service.
func NewActionService(store ActionStoreSet, tokens *ActionTokenService, delivery *DeliveryService, opts ...ActionOption) *ActionService {
	s := &ActionService{
		store:      store,
		tokens:     tokens,
		delivery:   delivery,
		now:        time.Now,
		logger:     slog.Default(),
		staleAfter: DefaultActionStaleAfter,
		handlers:   make(map[string]ActionHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a handler; one handler per action type.
func (s *ActionService) Register(h ActionHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[h.Type()]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerRegistered, h.Type())
	}
	s.handlers[h.Type()] = h
	return nil
}

func (s *ActionService) handler(actionType string) (ActionHandler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionType)
	}
	return h, nil
}

// VerifyToken exposes token verification to transports that need to route
// on the token target before acting.
func (s *ActionService) VerifyToken(ctx context.Context, tok string) (Claims, error) {
	return s.tokens.Verify(ctx, tok)
}

// Perform runs an action for the notification's owner.
func (s *ActionService) Perform(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if err := validator.Apply(
		validator.RequiredUUID("tenant_id", req.TenantID),
		validator.RequiredString("user_id", req.UserID),
		validator.RequiredUUID("notification_id", req.NotificationID),
		validator.RequiredString("action_type", req.ActionType),
	); err != nil {
		return ActionResult{}, errors.Join(ErrValidation, err)
	}

	n, err := s.store.GetNotification(ctx, req.NotificationID)
	if err != nil {
		return ActionResult{}, err
	}
	if n.TenantID != req.TenantID {
		return ActionResult{}, ErrNotificationNotFound
	}
	if n.UserID != req.UserID {
		return ActionResult{}, ErrForbidden
	}
	return s.perform(ctx, n, req.ActionType, req.ActionData, false)
}

// PerformViaToken runs the action a signed link grants. The notification's
// tenant and user are taken from storage, not from the caller.
func (s *ActionService) PerformViaToken(ctx context.Context, tok string, data map[string]any) (ActionResult, error) {
	claims, err := s.tokens.Verify(ctx, tok)
	if err != nil {
		return ActionResult{}, err
	}
	if claims.IsBatch() {
		return ActionResult{}, fmt.Errorf("%w: token targets a batch", ErrValidation)
	}

	n, err := s.store.GetNotification(ctx, claims.NotificationID)
	if err != nil {
		return ActionResult{}, err
	}
	res, err := s.perform(ctx, n, claims.ActionType, data, true)
	if err != nil {
		return res, err
	}
	if claims.ActionType != ActionMarkRead {
		s.markReadLater(ctx, n)
	}
	return res, nil
}

func (s *ActionService) perform(ctx context.Context, n *Notification, actionType string, data map[string]any, viaToken bool) (ActionResult, error) {
	h, err := s.handler(actionType)
	if err != nil {
		return ActionResult{}, err
	}

	rec, claimed, err := s.store.ClaimAction(ctx, ActionClaim{
		TenantID:         n.TenantID,
		NotificationID:   n.ID,
		ActionType:       actionType,
		ActionData:       data,
		ReclaimSucceeded: !h.Idempotent(),
		StaleAfter:       s.staleAfter,
		At:               s.now().UTC(),
	})
	if err != nil {
		return ActionResult{}, err
	}
	if !claimed {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "action already performed",
			logger.NotificationID(n.ID), logger.ActionType(actionType))
		return ActionResult{Success: true, Data: rec.Result}, nil
	}

	result, herr := h.Handle(ctx, ActionInput{Notification: n, ActionType: actionType, ActionData: data, ViaToken: viaToken})

	status, errMsg := ActionSucceeded, ""
	if herr != nil {
		status, errMsg = ActionFailed, herr.Error()
	}
	if err := s.store.FinishAction(ctx, rec.ID, status, result, errMsg, s.now().UTC()); err != nil {
		return ActionResult{}, errors.Join(herr, fmt.Errorf("record action: %w", err))
	}

	attrs := []slog.Attr{
		logger.TenantID(n.TenantID.String()),
		logger.UserID(n.UserID),
		logger.NotificationID(n.ID),
		logger.ActionType(actionType),
		slog.Bool("via_token", viaToken),
	}
	if herr != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "action failed", append(attrs, logger.Error(herr))...)
		return ActionResult{}, herr
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "action performed", attrs...)
	return ActionResult{Success: true, Data: result}, nil
}

// PerformBatch applies an action to every member of the user's batch.
func (s *ActionService) PerformBatch(ctx context.Context, req BatchActionRequest) (BatchActionResult, error) {
	if err := validator.Apply(
		validator.RequiredUUID("tenant_id", req.TenantID),
		validator.RequiredString("user_id", req.UserID),
		validator.RequiredUUID("batch_id", req.BatchID),
		validator.RequiredString("action_type", req.ActionType),
	); err != nil {
		return BatchActionResult{}, errors.Join(ErrValidation, err)
	}

	b, err := s.store.GetBatch(ctx, req.BatchID)
	if err != nil {
		return BatchActionResult{}, err
	}
	if b.TenantID != req.TenantID {
		return BatchActionResult{}, ErrBatchNotFound
	}
	if b.UserID != req.UserID {
		return BatchActionResult{}, ErrForbidden
	}
	return s.performBatch(ctx, b, req.ActionType, req.ActionData, false)
}

// PerformBatchViaToken runs the action a signed digest link grants.
func (s *ActionService) PerformBatchViaToken(ctx context.Context, tok string, data map[string]any) (BatchActionResult, error) {
	claims, err := s.tokens.Verify(ctx, tok)
	if err != nil {
		return BatchActionResult{}, err
	}
	if !claims.IsBatch() {
		return BatchActionResult{}, fmt.Errorf("%w: token targets a notification", ErrValidation)
	}
	b, err := s.store.GetBatch(ctx, claims.BatchID)
	if err != nil {
		return BatchActionResult{}, err
	}
	return s.performBatch(ctx, b, claims.ActionType, data, true)
}

func (s *ActionService) performBatch(ctx context.Context, b *Batch, actionType string, data map[string]any, viaToken bool) (BatchActionResult, error) {
	if _, err := s.handler(actionType); err != nil {
		return BatchActionResult{}, err
	}
	members, err := s.store.ListBatchMembers(ctx, b.ID)
	if err != nil {
		return BatchActionResult{}, err
	}

	res := BatchActionResult{Items: make([]ItemResult, 0, len(members))}
	for i := range members {
		n := &members[i]
		item := ItemResult{NotificationID: n.ID}
		r, err := s.perform(ctx, n, actionType, data, viaToken)
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			item.Success = true
			item.Data = r.Data
			res.Succeeded++
			if viaToken && actionType != ActionMarkRead {
				s.markReadLater(ctx, n)
			}
		}
		res.Items = append(res.Items, item)
	}
	res.Success = res.Failed == 0

	items := make([]any, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, map[string]any{
			"notification_id": it.NotificationID.String(),
			"success":         it.Success,
			"error":           it.Error,
		})
	}
	if err := s.store.CreateBatchAction(ctx, &BatchAction{
		ID:          uuid.New(),
		TenantID:    b.TenantID,
		BatchID:     b.ID,
		ActionType:  actionType,
		ActionData:  data,
		Succeeded:   res.Succeeded,
		Failed:      res.Failed,
		Result:      map[string]any{"items": items},
		PerformedAt: s.now().UTC(),
	}); err != nil {
		return res, fmt.Errorf("record batch action: %w", err)
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "batch action performed",
		logger.TenantID(b.TenantID.String()),
		logger.BatchID(b.ID),
		logger.ActionType(actionType),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// markReadLater flags the notification read in the background; errors are
// logged by the runner and never reach the caller.
func (s *ActionService) markReadLater(ctx context.Context, n *Notification) {
	if s.runner == nil || s.delivery == nil || n.Read || !n.IsDelivered() {
		return
	}
	tenantID, userID, id := n.TenantID, n.UserID, n.ID
	s.runner.Go(ctx, "mark_read_after_action", func(ctx context.Context) error {
		_, err := s.delivery.MarkRead(ctx, tenantID, userID, id)
		return err
	})
}
