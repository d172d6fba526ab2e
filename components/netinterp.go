package components

import (
	"github.com/automoto/physrep/shared/messages"
	"github.com/yohamta/donburi"
)

// SnapshotInterpolationData holds the bracketing poses picked for the current
// frame. Entities opt in by carrying the component; it is reset at the start
// of each frame. Either side is nil when the entity's ID was missing from
// that snapshot.
type SnapshotInterpolationData struct {
	Start *messages.BodyPose
	End   *messages.BodyPose

	// Fraction and VelocityScale are copied from the frame's bracket.
	Fraction      float32
	VelocityScale float32
}

// Reset drops the poses picked for the previous frame.
func (d *SnapshotInterpolationData) Reset() {
	*d = SnapshotInterpolationData{}
}

// Empty reports whether no pose was picked this frame.
func (d *SnapshotInterpolationData) Empty() bool {
	return d.Start == nil && d.End == nil
}

// Complete reports whether both bracketing poses are present.
func (d *SnapshotInterpolationData) Complete() bool {
	return d.Start != nil && d.End != nil
}

var SnapshotInterpolation = donburi.NewComponentType[SnapshotInterpolationData]()
