package phase

// Surface is a user-facing screen whose reachability depends on the phase.
type Surface int

const (
	SurfaceLogin Surface = iota
	SurfaceStart
	SurfacePharcryptor
	SurfaceItemDecryptor
	SurfaceMessenger
)

func (s Surface) String() string {
	switch s {
	case SurfaceLogin:
		return "login"
	case SurfaceStart:
		return "start"
	case SurfacePharcryptor:
		return "pharcryptor"
	case SurfaceItemDecryptor:
		return "item_decryptor"
	case SurfaceMessenger:
		return "messenger"
	default:
		return "unknown"
	}
}

// Reachable reports whether s can be opened in phase p. Every surface but the
// login form also waits for the item table (ready).
func Reachable(s Surface, p Phase, ready bool) bool {
	if s == SurfaceLogin {
		return p == Disconnected
	}
	if p == Disconnected || !ready {
		return false
	}
	switch s {
	case SurfaceStart:
		return p == PreGame
	case SurfacePharcryptor, SurfaceItemDecryptor:
		return p == InProgress || p == PostGame
	case SurfaceMessenger:
		return true
	default:
		return false
	}
}
