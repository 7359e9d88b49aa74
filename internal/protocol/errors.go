package protocol

const (
	// Wire validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World lookup/lifecycle.
	ErrNoWorld       = "E_NO_WORLD"
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"
	ErrWorldExists   = "E_WORLD_EXISTS"
	ErrWorldLocked   = "E_WORLD_LOCKED"
	ErrBusy          = "E_BUSY"

	// Command layer.
	ErrInvalid        = "E_INVALID"
	ErrZoneNotFound   = "E_ZONE_NOT_FOUND"
	ErrZoneExists     = "E_ZONE_EXISTS"
	ErrEntityNotFound = "E_ENTITY_NOT_FOUND"
	ErrConflict       = "E_CONFLICT"
	ErrTickOutOfRange = "E_TICK_OUT_OF_RANGE"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrNoWorld:         {},
	ErrWorldNotFound:   {},
	ErrWorldExists:     {},
	ErrWorldLocked:     {},
	ErrBusy:            {},
	ErrInvalid:         {},
	ErrZoneNotFound:    {},
	ErrZoneExists:      {},
	ErrEntityNotFound:  {},
	ErrConflict:        {},
	ErrTickOutOfRange:  {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
