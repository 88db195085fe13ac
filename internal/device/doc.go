// Package device manages site hardware: the device inventory and the
// command dispatcher that addresses hardware over the message bus.
//
// Every device has a stable device_id channel name; commands go out on
// foyer/command/{device_id} and liveness beacons come back on
// foyer/heartbeat/{device_id}. The dispatcher doubles as a lifecycle
// event sink so approval-triggered door unlocks flow through the same
// validation as operator-issued commands, while staying fully decoupled
// from the user-facing notification fanout.
package device
