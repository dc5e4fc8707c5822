package grouping

import (
	"context"
	"fmt"
	"time"

	"crm-notification-service/internal/domain"
)

// Store is the slice of persistence the engine needs for window lookups.
type Store interface {
	FindMostRecentByGroupKey(ctx context.Context, scopeID, userID, groupKey string, since time.Time) (*domain.Notification, error)
}

// Engine decides which notifications are eligible to merge and what a merged
// message looks like. It never writes; the orchestrator owns all mutations.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// groupableTypes is the allow-list of bursty event kinds. Assignment, due-soon
// and system events always surface individually.
var groupableTypes = map[domain.EventType]bool{
	domain.DealCreated:    true,
	domain.DealUpdated:    true,
	domain.ContactCreated: true,
	domain.CommentAdded:   true,
}

func (e *Engine) IsGroupable(t domain.EventType) bool {
	return groupableTypes[t]
}

// GenerateGroupKey returns nil for non-groupable types. With an entity the key
// consolidates per entity; without one it consolidates type-wide.
func (e *Engine) GenerateGroupKey(t domain.EventType, entityType, entityID string) *string {
	if !e.IsGroupable(t) {
		return nil
	}
	var key string
	if entityType != "" && entityID != "" {
		key = fmt.Sprintf("%s:%s:%s", t, entityType, entityID)
	} else {
		key = fmt.Sprintf("%s:GENERAL", t)
	}
	return &key
}

// FindGroupable returns the most recent notification with the key created
// inside the sliding window, or nil. The boundary is inclusive.
func (e *Engine) FindGroupable(ctx context.Context, scopeID, userID, groupKey string, windowSeconds int) (*domain.Notification, error) {
	cutoff := e.now().UTC().Add(-time.Duration(ClampWindow(windowSeconds)) * time.Second)
	return e.store.FindMostRecentByGroupKey(ctx, scopeID, userID, groupKey, cutoff)
}

// ClampWindow bounds a preferred window to [60, 3600] seconds, falling back to
// the default for unset values.
func ClampWindow(preferredSeconds int) int {
	if preferredSeconds <= 0 {
		return domain.DefaultGroupingWindowSeconds
	}
	if preferredSeconds < domain.MinGroupingWindowSeconds {
		return domain.MinGroupingWindowSeconds
	}
	if preferredSeconds > domain.MaxGroupingWindowSeconds {
		return domain.MaxGroupingWindowSeconds
	}
	return preferredSeconds
}

var groupedTemplates = map[domain.EventType]string{
	domain.DealCreated:    "%d new deals created",
	domain.DealUpdated:    "%d deals updated",
	domain.ContactCreated: "%d new contacts added",
	domain.CommentAdded:   "%d new comments",
}

// ComposeGroupedMessage renders the consolidated message for count events of a
// type. Callers must keep the original single-event message for count <= 1.
func ComposeGroupedMessage(t domain.EventType, count int) string {
	if tmpl, ok := groupedTemplates[t]; ok {
		return fmt.Sprintf(tmpl, count)
	}
	return fmt.Sprintf("%d new notifications", count)
}
