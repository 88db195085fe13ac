// Package mqtt provides MQTT client connectivity for Foyer Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Foyer uses MQTT as the bus between the core and the physical devices
// installed at a site (door controllers, badge scanners, cameras). The
// broker decouples the core from device firmware.
//
//	Foyer Core ↔ MQTT Broker ↔ Door controllers / scanners / sensors
//
// Commands flow core→device on foyer/command/{device_id}; devices report
// back on foyer/heartbeat/{device_id} and foyer/event/{device_id}.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to heartbeats from every device
//	err = client.Subscribe(mqtt.Topics{}.AllHeartbeats(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a door command
//	topic := mqtt.Topics{}.Command("door-main")
//	client.Publish(topic, []byte(`{"command":"unlock"}`), 1, false)
package mqtt
