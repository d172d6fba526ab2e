// Package gamemath holds the math shared by the origin simulation and the
// observer interpolation. It has no dependency on donburi or resolv.
package gamemath

import "github.com/go-gl/mathgl/mgl32"

// ClampSpeed scales v down so its length does not exceed max.
func ClampSpeed(v mgl32.Vec3, max float32) mgl32.Vec3 {
	if max <= 0 {
		return v
	}
	speed := v.Len()
	if speed <= max {
		return v
	}
	return v.Mul(max / speed)
}

// IntegrateRotation advances q by the angular velocity omega (radians per
// second, world space) over dt seconds and renormalizes.
func IntegrateRotation(q mgl32.Quat, omega mgl32.Vec3, dt float32) mgl32.Quat {
	if omega.Len() == 0 || dt == 0 {
		return q
	}
	spin := mgl32.Quat{W: 0, V: omega}.Mul(q).Scale(0.5 * dt)
	return q.Add(spin).Normalize()
}
