package core

import (
	"math"

	"github.com/automoto/physrep/archetypes"
	"github.com/automoto/physrep/components"
	"github.com/automoto/physrep/shared/leveldata"
	"github.com/automoto/physrep/shared/messages"
	"github.com/automoto/physrep/tags"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/solarlune/resolv"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

const spaceCellSize = 16

// spawnArena builds the collision space and static solids for an arena and
// returns the space. Bodies are spawned separately so each gets an ID.
func spawnArena(e *ecs.ECS, data *leveldata.ArenaData) *resolv.Space {
	space := resolv.NewSpace(data.Width, data.Height, spaceCellSize, spaceCellSize)

	arena := archetypes.Arena.Spawn(e)
	components.Arena.SetValue(arena, components.ArenaData{Name: data.Name, Space: space})

	for _, r := range data.Solids {
		obj := resolv.NewObject(r.X, r.Y, r.W, r.H, tags.ResolvSolid)
		obj.SetShape(resolv.NewRectangle(0, 0, r.W, r.H))
		space.Add(obj)

		solid := archetypes.Solid.Spawn(e)
		obj.Data = solid
		components.Object.SetValue(solid, components.ObjectData{Object: obj})
	}
	return space
}

// spawnBody creates a replicated body from an arena spawn record.
func spawnBody(e *ecs.ECS, space *resolv.Space, id messages.ObjectID, s leveldata.BodySpawn) *donburi.Entry {
	resolvTag := tags.ResolvBody
	arch := archetypes.Body
	if s.Kind == leveldata.KindMover {
		resolvTag = tags.ResolvMover
		arch = archetypes.Mover
	}

	obj := resolv.NewObject(s.X, s.Y, s.W, s.H, resolvTag)
	obj.SetShape(resolv.NewRectangle(0, 0, s.W, s.H))
	space.Add(obj)

	entry := arch.Spawn(e)
	obj.Data = entry
	components.Object.SetValue(entry, components.ObjectData{Object: obj})
	components.Replicated.SetValue(entry, components.ReplicatedData{ID: id})
	components.Body.SetValue(entry, components.BodyData{
		Z:               float32(s.Z),
		Rotation:        mgl32.QuatIdent(),
		LinearVelocity:  mgl32.Vec3{float32(s.VX), float32(s.VY), float32(s.VZ)},
		AngularVelocity: mgl32.Vec3{float32(s.SpinX), float32(s.SpinY), float32(s.SpinZ)},
		Restitution:     1,
		MaxSpeed:        maxBodySpeed,
	})

	if s.Kind == leveldata.KindMover {
		components.Mover.SetValue(entry, components.MoverData{
			X: pingPong(float32(s.MoveX), float32(s.Duration)),
			Y: pingPong(float32(s.MoveY), float32(s.Duration)),
		})
	}
	return entry
}

// maxBodySpeed keeps per-tick displacement well below the arena wall
// thickness at the default tick rate.
const maxBodySpeed = 400

// pingPong returns a sequence easing from 0 to offset and back, or nil when
// there is no movement along the axis.
func pingPong(offset, duration float32) *gween.Sequence {
	if offset == 0 {
		return nil
	}
	if duration <= 0 || math.IsNaN(float64(duration)) {
		duration = 1
	}
	return gween.NewSequence(
		gween.New(0, offset, duration, ease.InOutSine),
		gween.New(offset, 0, duration, ease.InOutSine),
	)
}

// removeBody detaches an entity's collider from the space and removes it.
func removeBody(world donburi.World, space *resolv.Space, entry *donburi.Entry) {
	if entry.HasComponent(components.Object) && space != nil {
		if obj := components.Object.Get(entry); obj.Object != nil {
			space.Remove(obj.Object)
		}
	}
	world.Remove(entry.Entity())
}
