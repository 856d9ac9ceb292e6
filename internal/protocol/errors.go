package protocol

// ConnectionRefused error codes.
const (
	ErrInvalidSlot          = "InvalidSlot"
	ErrInvalidGame          = "InvalidGame"
	ErrIncompatibleVersion  = "IncompatibleVersion"
	ErrInvalidPassword      = "InvalidPassword"
	ErrInvalidItemsHandling = "InvalidItemsHandling"
)

var knownCodes = map[string]struct{}{
	ErrInvalidSlot:          {},
	ErrInvalidGame:          {},
	ErrIncompatibleVersion:  {},
	ErrInvalidPassword:      {},
	ErrInvalidItemsHandling: {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Describe turns a refusal code into a short human readable reason.
func Describe(code string) string {
	switch code {
	case ErrInvalidSlot:
		return "no slot with that name"
	case ErrInvalidGame:
		return "slot is not a Pharcryption slot"
	case ErrIncompatibleVersion:
		return "server rejected the client version"
	case ErrInvalidPassword:
		return "wrong room password"
	case ErrInvalidItemsHandling:
		return "server rejected items handling flags"
	default:
		return code
	}
}
