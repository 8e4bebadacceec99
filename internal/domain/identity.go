package domain

// Identity is the inventory key of a discovered host together with how it was obtained.
//
// A host whose address resolved is Identified by its DNS name. A host whose
// address did not resolve is Unresolved and keyed by its IP string. Both are
// valid inventory keys; keeping them apart makes the fallback visible in logs.
type Identity struct {
	key      string
	resolved bool
}

// Identified returns the identity of a host known by its reverse-DNS name.
func Identified(name string) Identity {
	return Identity{key: name, resolved: true}
}

// Unresolved returns the identity of a host with no reverse-DNS entry.
func Unresolved(ip string) Identity {
	return Identity{key: ip}
}

// Key is the hostname used as the inventory primary key.
func (i Identity) Key() string { return i.key }

// Resolved reports whether the key came from name resolution.
func (i Identity) Resolved() bool { return i.resolved }

func (i Identity) String() string {
	if i.resolved {
		return "identified(" + i.key + ")"
	}
	return "unresolved(" + i.key + ")"
}
