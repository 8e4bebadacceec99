package redis

const (
	// KeyPrefixHost is the prefix for host record keys
	KeyPrefixHost = "hostwatch:host:"
	// KeyAllHosts is the key for the set of all hostnames
	KeyAllHosts = "hostwatch:hosts:all"
)

// HostKey returns the Redis key for a host record by hostname
func HostKey(hostname string) string {
	return KeyPrefixHost + hostname
}

// AllHostsKey returns the key for the set of all hostnames
func AllHostsKey() string {
	return KeyAllHosts
}
