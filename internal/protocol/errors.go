package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Board setup.
	ErrInvalidConfig  = "E_INVALID_CONFIG"
	ErrMalformedSave  = "E_MALFORMED_SAVE"
	ErrRangeViolation = "E_RANGE_VIOLATION"

	// Turn/session layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrConflict   = "E_CONFLICT"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrInvalidConfig:   {},
	ErrMalformedSave:   {},
	ErrRangeViolation:  {},
	ErrBadRequest:      {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
