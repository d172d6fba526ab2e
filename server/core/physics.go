package core

import (
	"github.com/automoto/physrep/components"
	"github.com/automoto/physrep/shared/gamemath"
	"github.com/automoto/physrep/tags"
	"github.com/tanema/gween"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

var (
	dynamicBodies = donburi.NewQuery(filter.And(
		filter.Contains(components.Body, components.Object),
		filter.Not(filter.Contains(components.Mover)),
	))
	movers = donburi.NewQuery(filter.Contains(components.Mover, components.Body, components.Object))
)

// stepMovers advances every kinematic mover along its tween path and derives
// its velocity from the displacement.
func stepMovers(world donburi.World, dt float32) {
	if dt <= 0 {
		return
	}
	movers.Each(world, func(entry *donburi.Entry) {
		mover := components.Mover.Get(entry)
		body := components.Body.Get(entry)
		obj := components.Object.Get(entry)

		x := advanceTween(mover.X, dt, mover.LastX)
		y := advanceTween(mover.Y, dt, mover.LastY)

		obj.X += float64(x - mover.LastX)
		obj.Y += float64(y - mover.LastY)
		obj.Update()

		body.LinearVelocity[0] = (x - mover.LastX) / dt
		body.LinearVelocity[1] = (y - mover.LastY) / dt
		mover.LastX, mover.LastY = x, y

		body.Z += body.LinearVelocity.Z() * dt
		body.Rotation = gamemath.IntegrateRotation(body.Rotation, body.AngularVelocity, dt)
	})
}

// stepBodies integrates every dynamic body over dt seconds. X and Y motion
// is resolved against solids and movers; on contact the body stops at the
// surface and the velocity component is reflected. Z is unconstrained.
func stepBodies(world donburi.World, dt float32) {
	if dt <= 0 {
		return
	}
	dynamicBodies.Each(world, func(entry *donburi.Entry) {
		body := components.Body.Get(entry)
		obj := components.Object.Get(entry)

		body.LinearVelocity = gamemath.ClampSpeed(body.LinearVelocity, body.MaxSpeed)

		// --- Resolve horizontal collision ---
		dx := float64(body.LinearVelocity.X() * dt)
		if dx != 0 {
			if check := obj.Check(dx, 0, tags.ResolvSolid, tags.ResolvMover); check != nil {
				if hits := check.ObjectsByTags(tags.ResolvSolid, tags.ResolvMover); len(hits) > 0 {
					dx = check.ContactWithObject(hits[0]).X()
					body.LinearVelocity[0] = -body.LinearVelocity[0] * body.Restitution
				}
			}
			obj.X += dx
		}

		// --- Resolve vertical collision ---
		dy := float64(body.LinearVelocity.Y() * dt)
		if dy != 0 {
			if check := obj.Check(0, dy, tags.ResolvSolid, tags.ResolvMover); check != nil {
				if hits := check.ObjectsByTags(tags.ResolvSolid, tags.ResolvMover); len(hits) > 0 {
					dy = check.ContactWithObject(hits[0]).Y()
					body.LinearVelocity[1] = -body.LinearVelocity[1] * body.Restitution
				}
			}
			obj.Y += dy
		}
		obj.Update()

		body.Z += body.LinearVelocity.Z() * dt
		body.Rotation = gamemath.IntegrateRotation(body.Rotation, body.AngularVelocity, dt)
	})
}

// advanceTween steps a looping tween sequence and returns its value. A
// finished sequence restarts from the beginning.
func advanceTween(seq *gween.Sequence, dt, last float32) float32 {
	if seq == nil {
		return last
	}
	v, _, done := seq.Update(dt)
	if done {
		seq.Reset()
	}
	return v
}
