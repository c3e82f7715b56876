package cnst

// BusType names a publisher backend
type BusType string

const (
	// BusTypeMemory delivers within the current process only
	BusTypeMemory BusType = "memory"
	// BusTypeRedis relays events through Redis pub/sub
	BusTypeRedis BusType = "redis"
	// BusTypeNATS relays events through a NATS subject
	BusTypeNATS BusType = "nats"
)

func (t BusType) String() string {
	return string(t)
}

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)

// BusRole limits what a process does on the shared bus
type BusRole string

const (
	BusRoleSender   BusRole = "sender"
	BusRoleReceiver BusRole = "receiver"
	BusRoleBoth     BusRole = "both"
)

// CanSend reports whether the role publishes to the bus
func (r BusRole) CanSend() bool {
	return r == BusRoleSender || r == BusRoleBoth
}

// CanReceive reports whether the role relays bus events to local sessions
func (r BusRole) CanReceive() bool {
	return r == BusRoleReceiver || r == BusRoleBoth
}
