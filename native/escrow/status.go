package escrow

// Status is the derived lifecycle state of an escrow record.
type Status byte

const (
	// StatusDisarmed means the record holds no transfer authority; no
	// outbound transfer is possible until it is re-armed.
	StatusDisarmed Status = 0x01
	// StatusArmedClosed means a transfer authority is held but no listing
	// is open, so nothing can match.
	StatusArmedClosed Status = 0x02
	// StatusArmedOpen means a transfer authority is held and an owner has
	// active trading terms on the record.
	StatusArmedOpen Status = 0x03
)

// Status derives the lifecycle state from the record fields.
func (r *Record) Status() Status {
	switch {
	case r == nil || !r.Armed:
		return StatusDisarmed
	case r.Listed:
		return StatusArmedOpen
	default:
		return StatusArmedClosed
	}
}

func (s Status) String() string {
	switch s {
	case StatusDisarmed:
		return "disarmed"
	case StatusArmedClosed:
		return "armed_closed"
	case StatusArmedOpen:
		return "armed_open"
	default:
		return "unknown"
	}
}
