package tags

import "github.com/yohamta/donburi"

var (
	// ReplicateBody marks origin bodies that are captured in snapshots.
	ReplicateBody = donburi.NewTag().SetName("ReplicateBody")
	Solid         = donburi.NewTag().SetName("Solid")
	Mover         = donburi.NewTag().SetName("Mover")
)

// Resolv tags for physics collision
const (
	ResolvSolid = "solid"
	ResolvBody  = "body"
	ResolvMover = "mover"
)
