package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"
)

// BodyData is the origin-side rigid body state. X and Y of the position live
// in the collider; Z and rotation live here.
type BodyData struct {
	Z               float32
	Rotation        mgl32.Quat
	LinearVelocity  mgl32.Vec3 // units per second
	AngularVelocity mgl32.Vec3 // radians per second
	Restitution     float32
	MaxSpeed        float32
}

var Body = donburi.NewComponentType[BodyData]()
