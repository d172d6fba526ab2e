package gamemath

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// slerpNlerpThreshold is the cosine above which slerp falls back to a
// normalized lerp; sin(theta) is too small to divide by reliably there.
const slerpNlerpThreshold = 0.9995

// Hermite evaluates a cubic Hermite spline at p. The tangents v0 and v1 are
// expressed per unit of p, so callers scale per-second velocities by the
// spline's duration before passing them in.
func Hermite(p float32, p0, v0, p1, v1 mgl32.Vec3) mgl32.Vec3 {
	p2 := p * p
	p3 := p2 * p

	h00 := 2*p3 - 3*p2 + 1
	h01 := -2*p3 + 3*p2
	h10 := p3 - 2*p2 + p
	h11 := p3 - p2

	return p0.Mul(h00).
		Add(p1.Mul(h01)).
		Add(v0.Mul(h10)).
		Add(v1.Mul(h11))
}

// Slerp spherically interpolates between two rotations along the shorter
// arc. The result is always unit length.
func Slerp(from, to mgl32.Quat, t float32) mgl32.Quat {
	from = from.Normalize()
	to = to.Normalize()

	dot := from.Dot(to)
	if dot < 0 {
		to = to.Scale(-1)
		dot = -dot
	}

	if dot > slerpNlerpThreshold {
		return from.Scale(1 - t).Add(to.Scale(t)).Normalize()
	}

	theta := math.Acos(float64(dot))
	sinTheta := math.Sin(theta)
	wFrom := float32(math.Sin((1-float64(t))*theta) / sinTheta)
	wTo := float32(math.Sin(float64(t)*theta) / sinTheta)

	return from.Scale(wFrom).Add(to.Scale(wTo)).Normalize()
}
