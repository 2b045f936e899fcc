package notify

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/validator"
)

// Digest window bounds a user may choose.
const (
	MinBatchInterval = time.Minute
	MaxBatchInterval = 7 * 24 * time.Hour
)

// DefaultChannels applies when neither a preference nor the type names channels.
var DefaultChannels = []string{ChannelEmail}

// PolicySource names the layer an EffectivePolicy came from.
type PolicySource string

const (
	SourcePreference PolicySource = "preference"
	SourceType       PolicySource = "type"
	SourceDefault    PolicySource = "default"
)

// EffectivePolicy is the resolved routing for one (user, type).
type EffectivePolicy struct {
	Enabled       bool
	Channels      []string
	Frequency     Frequency
	BatchInterval time.Duration
	QuietHours    *QuietHours
	Location      *time.Location
	Source        PolicySource
}

// InQuietHours reports whether now falls in the user's quiet window.
func (p EffectivePolicy) InQuietHours(now time.Time) bool {
	return p.QuietHours != nil && p.QuietHours.Contains(now, p.location())
}

// QuietHoursEnd returns when the current or next quiet window closes.
func (p EffectivePolicy) QuietHoursEnd(now time.Time) time.Time {
	if p.QuietHours == nil {
		return now
	}
	return p.QuietHours.EndAfter(now, p.location())
}

// Route decides between immediate delivery and batching. Quiet hours turn
// immediate into batched, and a digest never lands inside the quiet window.
func (p EffectivePolicy) Route(now time.Time) (batched bool, scheduledFor time.Time) {
	quiet := p.InQuietHours(now)
	if p.Frequency != FrequencyBatched && !quiet {
		return false, time.Time{}
	}

	if p.Frequency == FrequencyBatched && p.BatchInterval > 0 {
		scheduledFor = now.Truncate(p.BatchInterval).Add(p.BatchInterval)
	} else {
		scheduledFor = p.QuietHoursEnd(now)
	}
	if p.InQuietHours(scheduledFor) {
		scheduledFor = p.QuietHoursEnd(scheduledFor)
	}
	return true, scheduledFor.UTC()
}

func (p EffectivePolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// TypeLookup reads the notification type catalog.
type TypeLookup interface {
	Get(ctx context.Context, tenantID uuid.UUID, id string) (*NotificationType, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]NotificationType, error)
}

// ChannelSet reports which channel ids are registered.
type ChannelSet interface {
	Has(id string) bool
	IDs() []string
}

// PreferenceService reads and writes per-user preferences and resolves the
// effective delivery policy.
type PreferenceService struct {
	store    PreferenceStore
	types    TypeLookup
	channels ChannelSet
	now      func() time.Time
	logger   *slog.Logger
}

// PreferenceOption configures a PreferenceService.
type PreferenceOption func(*PreferenceService)

// WithPreferenceLogger sets the logger.
func WithPreferenceLogger(l *slog.Logger) PreferenceOption {
	return func(s *PreferenceService) {
		s.logger = l
	}
}

// WithPreferenceClock overrides time.Now.
func WithPreferenceClock(now func() time.Time) PreferenceOption {
	return func(s *PreferenceService) {
		s.now = now
	}
}

// NewPreferenceService creates a preference service.
func NewPreferenceService(store PreferenceStore, types TypeLookup, channels ChannelSet, opts ...PreferenceOption) *PreferenceService {
	s := &PreferenceService{
		store:    store,
		types:    types,
		channels: channels,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored preference or the defaults the user would get.
func (s *PreferenceService) Get(ctx context.Context, tenantID uuid.UUID, userID, typeID string) (*Preference, error) {
	typ, err := s.types.Get(ctx, tenantID, typeID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, tenantID, userID, typ)
}

// List returns one preference per catalog type, stored or defaulted.
func (s *PreferenceService) List(ctx context.Context, tenantID uuid.UUID, userID string) ([]Preference, error) {
	types, err := s.types.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.ListPreferences(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]Preference, len(stored))
	for _, p := range stored {
		byType[p.TypeID] = p
	}

	out := make([]Preference, 0, len(types))
	for _, t := range types {
		if t.ID == DigestTypeID {
			continue
		}
		if p, ok := byType[t.ID]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, defaultPreference(tenantID, userID, &t))
	}
	return out, nil
}

func (s *PreferenceService) load(ctx context.Context, tenantID uuid.UUID, userID string, typ *NotificationType) (*Preference, error) {
	p, err := s.store.GetPreference(ctx, tenantID, userID, typ.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPreferenceNotFound) {
		return nil, err
	}
	def := defaultPreference(tenantID, userID, typ)
	return &def, nil
}

func defaultPreference(tenantID uuid.UUID, userID string, typ *NotificationType) Preference {
	channels := DefaultChannels
	if len(typ.DefaultChannels) > 0 {
		channels = typ.DefaultChannels
	}
	return Preference{
		TenantID:  tenantID,
		UserID:    userID,
		TypeID:    typ.ID,
		Enabled:   true,
		Channels:  slices.Clone(channels),
		Frequency: FrequencyImmediate,
	}
}

// UpdateInput changes a preference. Nil fields keep their current value.
type UpdateInput struct {
	TenantID        uuid.UUID
	UserID          string
	TypeID          string
	Enabled         *bool
	Channels        []string
	Frequency       *Frequency
	BatchInterval   *time.Duration
	QuietHours      *QuietHours
	ClearQuietHours bool
	Timezone        *string
}

// Update merges in over the current preference and stores the result.
func (s *PreferenceService) Update(ctx context.Context, in UpdateInput) (*Preference, error) {
	if err := validator.Apply(
		validator.RequiredUUID("tenant_id", in.TenantID),
		validator.RequiredString("user_id", in.UserID),
		validator.RequiredString("type_id", in.TypeID),
	); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	typ, err := s.types.Get(ctx, in.TenantID, in.TypeID)
	if err != nil {
		return nil, err
	}
	p, err := s.load(ctx, in.TenantID, in.UserID, typ)
	if err != nil {
		return nil, err
	}

	if in.Enabled != nil {
		p.Enabled = *in.Enabled
	}
	if in.Channels != nil {
		p.Channels = dedupe(in.Channels)
	}
	if in.Frequency != nil {
		p.Frequency = *in.Frequency
	}
	if in.BatchInterval != nil {
		p.BatchInterval = *in.BatchInterval
	}
	if in.ClearQuietHours {
		p.QuietHours = nil
	} else if in.QuietHours != nil {
		qh := *in.QuietHours
		p.QuietHours = &qh
	}
	if in.Timezone != nil {
		p.Timezone = *in.Timezone
	}
	if p.Frequency == FrequencyImmediate {
		p.BatchInterval = 0
	}

	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.store.UpsertPreference(ctx, p); err != nil {
		return nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "preference updated",
		logger.TenantID(in.TenantID.String()),
		logger.UserID(in.UserID),
		logger.TypeID(in.TypeID),
		slog.Bool("enabled", p.Enabled),
	)
	return p, nil
}

// SubscribeInput enables a type for a user, optionally choosing routing.
type SubscribeInput struct {
	TenantID      uuid.UUID
	UserID        string
	TypeID        string
	Channels      []string
	Frequency     Frequency
	BatchInterval time.Duration
}

// Subscribe enables the type for the user.
func (s *PreferenceService) Subscribe(ctx context.Context, in SubscribeInput) (*Preference, error) {
	enabled := true
	upd := UpdateInput{
		TenantID: in.TenantID,
		UserID:   in.UserID,
		TypeID:   in.TypeID,
		Enabled:  &enabled,
		Channels: in.Channels,
	}
	if in.Frequency != "" {
		upd.Frequency = &in.Frequency
	}
	if in.BatchInterval > 0 {
		upd.BatchInterval = &in.BatchInterval
	}
	return s.Update(ctx, upd)
}

// Unsubscribe disables the type for the user, creating the row if missing.
func (s *PreferenceService) Unsubscribe(ctx context.Context, tenantID uuid.UUID, userID, typeID string) (*Preference, error) {
	disabled := false
	return s.Update(ctx, UpdateInput{TenantID: tenantID, UserID: userID, TypeID: typeID, Enabled: &disabled})
}

// DisableChannel removes one channel from the user's preference for the type;
// removing the last channel disables the type.
func (s *PreferenceService) DisableChannel(ctx context.Context, tenantID uuid.UUID, userID, typeID, channel string) (*Preference, error) {
	current, err := s.Get(ctx, tenantID, userID, typeID)
	if err != nil {
		return nil, err
	}
	remaining := slices.DeleteFunc(slices.Clone(current.Channels), func(c string) bool { return c == channel })
	upd := UpdateInput{TenantID: tenantID, UserID: userID, TypeID: typeID, Channels: remaining}
	if len(remaining) == 0 {
		disabled := false
		upd.Enabled = &disabled
		upd.Channels = current.Channels
	}
	return s.Update(ctx, upd)
}

// Resolve computes the effective policy: stored row, then the type's default
// channels, then the system default of immediate email.
func (s *PreferenceService) Resolve(ctx context.Context, tenantID uuid.UUID, userID string, typ *NotificationType) (EffectivePolicy, error) {
	p, err := s.store.GetPreference(ctx, tenantID, userID, typ.ID)
	switch {
	case err == nil:
		loc, lerr := LoadLocation(p.Timezone)
		if lerr != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "invalid stored timezone, using UTC",
				logger.UserID(userID), logger.TypeID(typ.ID), logger.Error(lerr))
			loc = time.UTC
		}
		return EffectivePolicy{
			Enabled:       p.Enabled,
			Channels:      slices.Clone(p.Channels),
			Frequency:     p.Frequency,
			BatchInterval: p.BatchInterval,
			QuietHours:    p.QuietHours,
			Location:      loc,
			Source:        SourcePreference,
		}, nil
	case !errors.Is(err, ErrPreferenceNotFound):
		return EffectivePolicy{}, err
	}

	policy := EffectivePolicy{
		Enabled:   true,
		Channels:  slices.Clone(DefaultChannels),
		Frequency: FrequencyImmediate,
		Location:  time.UTC,
		Source:    SourceDefault,
	}
	if len(typ.DefaultChannels) > 0 {
		policy.Channels = slices.Clone(typ.DefaultChannels)
		policy.Source = SourceType
	}
	return policy, nil
}

// InQuietHours reports whether now is inside pref's quiet window.
func (s *PreferenceService) InQuietHours(pref Preference, now time.Time) bool {
	return policyOf(pref).InQuietHours(now)
}

// QuietHoursEnd returns when pref's current or next quiet window closes.
func (s *PreferenceService) QuietHoursEnd(pref Preference, now time.Time) time.Time {
	return policyOf(pref).QuietHoursEnd(now)
}

func policyOf(pref Preference) EffectivePolicy {
	loc, err := LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return EffectivePolicy{
		Enabled:       pref.Enabled,
		Channels:      pref.Channels,
		Frequency:     pref.Frequency,
		BatchInterval: pref.BatchInterval,
		QuietHours:    pref.QuietHours,
		Location:      loc,
	}
}

func (s *PreferenceService) validate(p *Preference) error {
	var registered []string
	if s.channels != nil {
		registered = s.channels.IDs()
	}
	batched := p.Frequency == FrequencyBatched

	err := validator.Apply(
		validator.InList("frequency", p.Frequency, []Frequency{FrequencyImmediate, FrequencyBatched}),
		validator.When(p.Enabled, validator.RequiredSlice("channels", p.Channels)),
		validator.When(s.channels != nil, validator.EachInList("channels", p.Channels, registered)),
		validator.When(batched, validator.MinNum("batch_interval", p.BatchInterval, MinBatchInterval)),
		validator.When(batched, validator.MaxNum("batch_interval", p.BatchInterval, MaxBatchInterval)),
		validator.When(p.QuietHours != nil, validator.ValidClock("quiet_hours.start", quietStart(p))),
		validator.When(p.QuietHours != nil, validator.ValidClock("quiet_hours.end", quietEnd(p))),
		validator.When(p.Timezone != "", validator.ValidTimezone("timezone", p.Timezone)),
	)
	if err != nil {
		return errors.Join(ErrValidation, err)
	}
	return nil
}

func quietStart(p *Preference) string {
	if p.QuietHours == nil {
		return ""
	}
	return p.QuietHours.Start
}

func quietEnd(p *Preference) string {
	if p.QuietHours == nil {
		return ""
	}
	return p.QuietHours.End
}

// dedupe drops empty and repeated values, keeping first-seen order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
