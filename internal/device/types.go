package device

import "time"

// Type categorises the hardware a device row represents.
type Type string

const (
	TypeDoor    Type = "door"
	TypeScanner Type = "scanner"
	TypeCamera  Type = "camera"
	TypeSensor  Type = "sensor"
	TypeOther   Type = "other"
)

// IsValidType returns true for a known device type.
func IsValidType(t Type) bool {
	switch t {
	case TypeDoor, TypeScanner, TypeCamera, TypeSensor, TypeOther:
		return true
	}
	return false
}

// Device represents a piece of site hardware reachable over the bus.
//
// DeviceID is the stable channel name the device announces itself under
// and the address commands are published to; it never changes after
// provisioning even if the device row is renamed.
type Device struct {
	ID        int64      `json:"id"`
	DeviceID  string     `json:"device_id"`
	Name      string     `json:"name"`
	Type      Type       `json:"type"`
	Location  string     `json:"location,omitempty"`
	IsActive  bool       `json:"is_active"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Config    string     `json:"config"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
