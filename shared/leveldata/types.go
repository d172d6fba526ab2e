// Package leveldata provides TMX arena parsing for the origin simulation.
// It has no dependencies on donburi or resolv, only plain data.
package leveldata

// Body kinds accepted in the Bodies object group.
const (
	KindDynamic = "dynamic"
	KindMover   = "mover"
)

// ArenaData holds everything the origin needs from an arena file.
type ArenaData struct {
	Name   string
	Width  int
	Height int
	Solids []SolidRect
	Bodies []BodySpawn
}

// SolidRect is a static collision rectangle.
type SolidRect struct {
	X, Y, W, H float64
}

// BodySpawn describes one replicated body placed in the arena.
type BodySpawn struct {
	Name       string
	Kind       string // KindDynamic or KindMover
	X, Y, W, H float64
	Z          float64

	// Initial linear velocity in units per second.
	VX, VY, VZ float64
	// Angular velocity in radians per second around each axis.
	SpinX, SpinY, SpinZ float64

	// Mover path: offset of the far end and seconds per leg.
	MoveX, MoveY float64
	Duration     float64
}
