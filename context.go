package sagascope

import (
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// SagaContext carries the identity and metadata for a single saga instance.
// It is created together with its scope and lives exactly as long as the
// scope; it is never shared between scopes.
type SagaContext struct {
	id            uuid.UUID
	correlationID string
	properties    *xsync.MapOf[string, any]
}

// NewSagaContext creates a context with a freshly generated saga ID.
func NewSagaContext() *SagaContext {
	return &SagaContext{
		id:         uuid.New(),
		properties: xsync.NewMapOf[string, any](),
	}
}

// ID returns the unique identifier generated at construction.
func (c *SagaContext) ID() uuid.UUID {
	return c.id
}

// CorrelationID returns the caller-assigned correlation identifier.
func (c *SagaContext) CorrelationID() string {
	return c.correlationID
}

// SetCorrelationID associates the saga with an external request identifier.
func (c *SagaContext) SetCorrelationID(id string) {
	c.correlationID = id
}

// SetProperty stores an arbitrary value under the given key.
func (c *SagaContext) SetProperty(key string, value any) {
	c.properties.Store(key, value)
}

// Property retrieves a previously stored value.
func (c *SagaContext) Property(key string) (any, bool) {
	return c.properties.Load(key)
}

// Properties returns a snapshot copy of the property bag.
func (c *SagaContext) Properties() map[string]any {
	snapshot := make(map[string]any, c.properties.Size())
	c.properties.Range(func(key string, value any) bool {
		snapshot[key] = value
		return true
	})
	return snapshot
}
