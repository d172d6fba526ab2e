package gamemath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const eps = 1e-4

func vecNear(a, b mgl32.Vec3) bool {
	return a.ApproxEqualThreshold(b, eps)
}

// sameRotation treats q and -q as the same rotation.
func sameRotation(a, b mgl32.Quat) bool {
	return math.Abs(float64(a.Normalize().Dot(b.Normalize()))) > 1-eps
}

func TestHermiteEndpoints(t *testing.T) {
	p0 := mgl32.Vec3{1, 2, 3}
	p1 := mgl32.Vec3{-4, 8, 0.5}
	v0 := mgl32.Vec3{10, 0, -3}
	v1 := mgl32.Vec3{0, 7, 2}

	if got := Hermite(0, p0, v0, p1, v1); !vecNear(got, p0) {
		t.Errorf("Hermite(0) = %v, want %v", got, p0)
	}
	if got := Hermite(1, p0, v0, p1, v1); !vecNear(got, p1) {
		t.Errorf("Hermite(1) = %v, want %v", got, p1)
	}
}

func TestHermiteZeroVelocityIsCubicEase(t *testing.T) {
	p0 := mgl32.Vec3{0, 0, 0}
	p1 := mgl32.Vec3{10, 0, 0}

	p := float32(80) / float32(150)
	want := 10 * (-2*p*p*p + 3*p*p)

	got := Hermite(p, p0, mgl32.Vec3{}, p1, mgl32.Vec3{})
	if math.Abs(float64(got.X()-want)) > eps || got.Y() != 0 || got.Z() != 0 {
		t.Fatalf("Hermite(%v) = %v, want (%v,0,0)", p, got, want)
	}
	if got.X() < 5.4 || got.X() > 5.6 {
		t.Errorf("eased position %v outside expected range", got.X())
	}
}

func TestHermiteMatchesTangents(t *testing.T) {
	p0 := mgl32.Vec3{0, 0, 0}
	p1 := mgl32.Vec3{1, 0, 0}
	v := mgl32.Vec3{1, 0, 0}

	// Constant velocity that agrees with the displacement is a straight line.
	for _, p := range []float32{0, 0.25, 0.5, 0.75, 1} {
		got := Hermite(p, p0, v, p1, v)
		if !vecNear(got, mgl32.Vec3{p, 0, 0}) {
			t.Errorf("Hermite(%v) = %v, want linear", p, got)
		}
	}
}

func TestSlerpEndpoints(t *testing.T) {
	from := mgl32.QuatRotate(0.3, mgl32.Vec3{0, 0, 1})
	to := mgl32.QuatRotate(2.1, mgl32.Vec3{0, 1, 0})

	if got := Slerp(from, to, 0); !sameRotation(got, from) {
		t.Errorf("Slerp(0) = %v, want %v", got, from)
	}
	if got := Slerp(from, to, 1); !sameRotation(got, to) {
		t.Errorf("Slerp(1) = %v, want %v", got, to)
	}
}

func TestSlerpTakesShorterArc(t *testing.T) {
	from := mgl32.QuatIdent()
	to := mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{0, 0, 1}).Scale(-1)

	mid := Slerp(from, to, 0.5)
	want := mgl32.QuatRotate(math.Pi/4, mgl32.Vec3{0, 0, 1})
	if !sameRotation(mid, want) {
		t.Fatalf("Slerp midpoint = %v, want %v", mid, want)
	}
}

func TestSlerpUnitLength(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomQuat := func() mgl32.Quat {
		axis := mgl32.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, rng.Float32() - 0.5}
		if axis.Len() == 0 {
			axis = mgl32.Vec3{0, 1, 0}
		}
		return mgl32.QuatRotate(rng.Float32()*2*math.Pi, axis.Normalize())
	}

	for i := 0; i < 500; i++ {
		from, to := randomQuat(), randomQuat()
		p := rng.Float32()
		got := Slerp(from, to, p)
		if l := got.Len(); math.Abs(float64(l-1)) > eps {
			t.Fatalf("Slerp(%v, %v, %v) has length %v", from, to, p, l)
		}
	}
}

func TestSlerpNearlyIdentical(t *testing.T) {
	from := mgl32.QuatRotate(1.0, mgl32.Vec3{1, 0, 0})
	to := mgl32.QuatRotate(1.0001, mgl32.Vec3{1, 0, 0})

	got := Slerp(from, to, 0.5)
	if l := got.Len(); math.Abs(float64(l-1)) > eps {
		t.Fatalf("length = %v", l)
	}
	if !sameRotation(got, from) {
		t.Errorf("Slerp of near-identical rotations drifted: %v", got)
	}
}
