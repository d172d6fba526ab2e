package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"
)

// TransformData is the rendered pose of an entity. A zero Rotation is not a
// valid orientation; spawners set it to mgl32.QuatIdent().
type TransformData struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

var Transform = donburi.NewComponentType[TransformData]()
