package archetypes

import (
	"github.com/automoto/physrep/components"
	"github.com/automoto/physrep/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

var (
	// Origin side.
	Arena = newArchetype(
		components.Arena,
	)
	Solid = newArchetype(
		tags.Solid,
		components.Object,
	)
	Body = newArchetype(
		tags.ReplicateBody,
		components.Replicated,
		components.Object,
		components.Body,
	)
	Mover = newArchetype(
		tags.ReplicateBody,
		tags.Mover,
		components.Replicated,
		components.Object,
		components.Body,
		components.Mover,
	)

	// Observer side.
	ReplicatedProxy = newArchetype(
		components.Replicated,
		components.Transform,
		components.SnapshotInterpolation,
	)
)

type archetype struct {
	components []donburi.IComponentType
}

func newArchetype(cs ...donburi.IComponentType) *archetype {
	return &archetype{
		components: cs,
	}
}

func (a *archetype) Spawn(ecs *ecs.ECS, cs ...donburi.IComponentType) *donburi.Entry {
	e := ecs.World.Entry(ecs.World.Create(
		append(a.components, cs...)...,
	))
	return e
}
