package tracking

import "fmt"

// Role is the part a tracked tool plays in a session.
type Role int

// The roles, in the order tools are initialized and polled.
const (
	Reference Role = iota
	Probe
	Needle
	Pointer

	// NumRoles is the number of tools in every session.
	NumRoles
)

// Roles lists every role in initialization order.
var Roles = [NumRoles]Role{Reference, Probe, Needle, Pointer}

func (r Role) String() string {
	switch r {
	case Reference:
		return "reference"
	case Probe:
		return "probe"
	case Needle:
		return "needle"
	case Pointer:
		return "pointer"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}
