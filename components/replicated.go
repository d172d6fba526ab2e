package components

import (
	"github.com/automoto/physrep/shared/messages"
	"github.com/yohamta/donburi"
)

// ReplicatedData links an entity to the origin object it mirrors.
type ReplicatedData struct {
	ID messages.ObjectID
}

var Replicated = donburi.NewComponentType[ReplicatedData]()
