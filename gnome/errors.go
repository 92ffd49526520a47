package gnome

import "errors"

var (
	// ErrPayloadTooLarge is returned when a proposal's data exceeds
	// MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrNoSwarmIDAvailable is returned when every SwarmID (0-255) is
	// already in use.
	ErrNoSwarmIDAvailable = errors.New("no swarm id available")

	// ErrNoCastIDAvailable is returned when every CastID (0-255) for a
	// given cast kind is already in use.
	ErrNoCastIDAvailable = errors.New("no cast id available")

	// ErrUnknownNeighbor is returned when a request names a GnomeId this
	// gnome has no Neighbor record for.
	ErrUnknownNeighbor = errors.New("unknown neighbor")

	// ErrOngoingRequestSlotsExhausted is returned when all 256 ongoing
	// forwarded-connect request slots are occupied.
	ErrOngoingRequestSlotsExhausted = errors.New("ongoing request slots exhausted")
)
