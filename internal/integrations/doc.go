// Package integrations holds the pluggable external-service boundaries:
// facial recognition and SMS delivery.
//
// The core invokes these at defined extension points (check-in photo
// matching, visit decision notifications) through small interfaces.
// The implementations here are deterministic stand-ins suitable for
// development and tests; production deployments swap in real backends
// at wiring time.
package integrations
