package domain

// Event is what producers hand to the orchestrator. Producers fire it after
// their own transaction commits and do not wait for delivery.
type Event struct {
	ID           string // ulid assigned on ingest, for log correlation only
	Type         EventType
	Title        string
	Message      string
	UserID       string
	OwnerScopeID string
	EntityType   string
	EntityID     string
}
