package mqtt

import "fmt"

// Topic prefixes for the Foyer MQTT namespace.
//
// Device-facing topics use the flat scheme: foyer/{category}/{device_id}
// where device_id is the stable channel name a device announces itself
// under (e.g. "door-main", "scanner-lobby").
const (
	// TopicPrefix is the base for all Foyer topics.
	TopicPrefix = "foyer"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "foyer/system"
)

// Topics provides builders for Foyer MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.Command("door-main")
//	// Returns: "foyer/command/door-main"
type Topics struct{}

// Command returns the topic for commands to a device.
//
// Example: foyer/command/door-main
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// Heartbeat returns the topic a device publishes liveness beacons on.
//
// Example: foyer/heartbeat/scanner-lobby
func (Topics) Heartbeat(deviceID string) string {
	return fmt.Sprintf("%s/heartbeat/%s", TopicPrefix, deviceID)
}

// DeviceEvent returns the topic for events originating from a device,
// such as a badge scan or a door-held-open alarm.
//
// Example: foyer/event/scanner-lobby
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, deviceID)
}

// Ack returns the topic for command acknowledgements from a device.
//
// Example: foyer/ack/door-main
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the core status topic. The LWT message and the
// online/offline announcements are published here, retained.
//
// Example: foyer/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllHeartbeats returns a pattern matching heartbeats from every device.
//
// Pattern: foyer/heartbeat/+
func (Topics) AllHeartbeats() string {
	return fmt.Sprintf("%s/heartbeat/+", TopicPrefix)
}

// AllDeviceEvents returns a pattern matching events from every device.
//
// Pattern: foyer/event/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllAcks returns a pattern matching acknowledgements from every device.
//
// Pattern: foyer/ack/+
func (Topics) AllAcks() string {
	return fmt.Sprintf("%s/ack/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Foyer topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: foyer/#
func (Topics) AllTopics() string {
	return "foyer/#"
}
