package domain

// ActorType identifies who triggered an operation.
type ActorType string

const (
	ActorTypeCustomer ActorType = "CUSTOMER"
	ActorTypeVisitor  ActorType = "VISITOR"
	ActorTypeAgent    ActorType = "AGENT"
	ActorTypeSystem   ActorType = "SYSTEM"
)

// Actor carries the identity behind a mutating operation, for audit entries
// and event attribution.
type Actor struct {
	Type ActorType
	ID   string
}

// SystemActor is used for monitor-driven and bot-driven mutations.
var SystemActor = Actor{Type: ActorTypeSystem, ID: "system"}
