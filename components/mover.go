package components

import (
	"github.com/tanema/gween"
	"github.com/yohamta/donburi"
)

// MoverData drives a kinematic body back and forth along a fixed path.
type MoverData struct {
	X, Y *gween.Sequence
	// Previous tween output, used to derive velocity.
	LastX, LastY float32
}

var Mover = donburi.NewComponentType[MoverData]()
