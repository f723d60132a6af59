package booking

import "github.com/google/uuid"

// ActorRole tags who initiated a command.
type ActorRole string

const (
	ActorUser     ActorRole = "user"
	ActorProvider ActorRole = "provider"
	ActorSystem   ActorRole = "system"
)

// IsValid returns true if the role is recognized.
func (r ActorRole) IsValid() bool {
	switch r {
	case ActorUser, ActorProvider, ActorSystem:
		return true
	}
	return false
}

// Actor identifies the user, provider or system process behind a command.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role ActorRole
}

// SystemActor is used for scheduler- and resolver-initiated transitions.
func SystemActor(name string) Actor {
	return Actor{ID: uuid.Nil, Name: name, Role: ActorSystem}
}
