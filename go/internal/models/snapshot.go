package models

import "math"

// Vec3 is a plain 3-component vector. The game is 2D; Z is carried for scale and depth.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Len returns the euclidean length of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Lerp moves v toward to by fraction t.
func (v Vec3) Lerp(to Vec3, t float64) Vec3 {
	return Vec3{
		X: v.X + (to.X-v.X)*t,
		Y: v.Y + (to.Y-v.Y)*t,
		Z: v.Z + (to.Z-v.Z)*t,
	}
}

// Vec2 is used for aim directions.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AvatarState is the continuous state of a live avatar as produced by the local simulation.
type AvatarState struct {
	Position        Vec3    `json:"position"`
	Scale           Vec3    `json:"scale"`
	Angle           float64 `json:"angle"` // degrees
	InputHorizontal float64 `json:"input_horizontal"`
}

// EntitySnapshot is one sample of an avatar's continuous state at an owner tick.
type EntitySnapshot struct {
	EntityID PeerID      `json:"entity_id"`
	Owner    PeerID      `json:"owner"`
	Seq      uint64      `json:"seq"`
	State    AvatarState `json:"state"`
}
