package enum

// EventKind describes the meaning of a raw user stream event.
type EventKind uint8

const (
	_event_kind_beg EventKind = iota
	EventKindAccount
	EventKindOrderTrade
	EventKindLifecycle
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _event_kind_beg && k < _event_kind_end
}

func (k EventKind) String() string {
	switch k {
	case EventKindAccount:
		return "ACCOUNT_UPDATE"
	case EventKindOrderTrade:
		return "ORDER_TRADE_UPDATE"
	case EventKindLifecycle:
		return "LIFECYCLE"
	default:
		return "UNKNOWN"
	}
}

// Lifecycle is the connection state carried by a lifecycle event.
type Lifecycle uint8

const (
	_lifecycle_beg Lifecycle = iota
	LifecycleConnected
	LifecycleDisconnected
	LifecycleListenKeyExpired
	_lifecycle_end
)

func (l Lifecycle) IsAvailable() bool {
	return l > _lifecycle_beg && l < _lifecycle_end
}

func (l Lifecycle) String() string {
	switch l {
	case LifecycleConnected:
		return "connected"
	case LifecycleDisconnected:
		return "disconnected"
	case LifecycleListenKeyExpired:
		return "listen key expired"
	default:
		return "unknown"
	}
}
