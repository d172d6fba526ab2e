package messages

// BodyRemoved is broadcast when a replicated body is despawned on the origin.
type BodyRemoved struct {
	ID ObjectID
}
