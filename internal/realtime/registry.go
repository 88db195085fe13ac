package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
)

// Prober issues a transport-level liveness probe (e.g. a websocket ping).
// The response path calls Conn.Confirm.
type Prober interface {
	Probe(c *Conn) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(c *Conn) error

// Probe calls f(c).
func (f ProberFunc) Probe(c *Conn) error { return f(c) }

// ConnectionGauge receives connection counts after each sweep. Optional.
// Satisfied by metrics.Client.
type ConnectionGauge interface {
	WriteConnectionGauge(users, devices int)
}

// Registry tracks live connections with indexed lookup by role, host,
// and device channel, so fanout cost is proportional to recipients, not
// to the total connection count.
//
// All methods are safe for concurrent use.
type Registry struct {
	logger *logging.Logger

	mu       sync.RWMutex
	conns    map[string]*Conn
	byRole   map[auth.Role]map[string]*Conn
	byHost   map[int64]map[string]*Conn
	byDevice map[string]*Conn

	prober Prober
	gauge  ConnectionGauge
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		logger:   logger,
		conns:    make(map[string]*Conn),
		byRole:   make(map[auth.Role]map[string]*Conn),
		byHost:   make(map[int64]map[string]*Conn),
		byDevice: make(map[string]*Conn),
	}
}

// SetProber wires the transport-level liveness probe used by Run.
func (r *Registry) SetProber(p Prober) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prober = p
}

// SetGauge wires optional connection-count telemetry.
func (r *Registry) SetGauge(g ConnectionGauge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauge = g
}

// Register adds a connection to the registry and its indexes.
// Idempotent per connection id: registering an id again replaces the
// prior registration data, supporting re-registration without reconnect.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[c.ID]; ok {
		r.removeIndexesLocked(old)
	}

	r.conns[c.ID] = c

	if r.byRole[c.Role] == nil {
		r.byRole[c.Role] = make(map[string]*Conn)
	}
	r.byRole[c.Role][c.ID] = c

	if c.Role == auth.RoleHost && c.HostID != 0 {
		if r.byHost[c.HostID] == nil {
			r.byHost[c.HostID] = make(map[string]*Conn)
		}
		r.byHost[c.HostID][c.ID] = c
	}

	if c.DeviceID != "" {
		r.byDevice[c.DeviceID] = c
	}
}

// Unregister removes a connection and closes it. No-op if absent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		r.removeIndexesLocked(c)
	}
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

// removeIndexesLocked drops a connection from the secondary indexes.
// Caller holds r.mu.
func (r *Registry) removeIndexesLocked(c *Conn) {
	if m := r.byRole[c.Role]; m != nil {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(r.byRole, c.Role)
		}
	}
	if c.Role == auth.RoleHost && c.HostID != 0 {
		if m := r.byHost[c.HostID]; m != nil {
			delete(m, c.ID)
			if len(m) == 0 {
				delete(r.byHost, c.HostID)
			}
		}
	}
	if c.DeviceID != "" && r.byDevice[c.DeviceID] == c {
		delete(r.byDevice, c.DeviceID)
	}
}

// ForRole returns the live connections registered with the given role.
func (r *Registry) ForRole(role auth.Role) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.byRole[role]
	out := make([]*Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// ForHost returns the live host connections bound to the given user id.
// Normally 0 or 1 entries, but a host may hold several sessions at once.
func (r *Registry) ForHost(hostID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.byHost[hostID]
	out := make([]*Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// ForDevice returns the connection bound to a device channel, or nil.
func (r *Registry) ForDevice(deviceID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byDevice[deviceID]
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Run drives the liveness cycle until ctx is cancelled.
//
// Each tick purges every connection that failed to confirm since the
// previous tick, then marks the survivors unverified and probes them.
// A silently-dropped socket therefore lives at most two intervals.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("connection liveness sweep started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("connection liveness sweep stopped")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep runs one liveness cycle.
func (r *Registry) sweep() {
	r.mu.RLock()
	snapshot := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	prober := r.prober
	gauge := r.gauge
	r.mu.RUnlock()

	users, devices := 0, 0
	for _, c := range snapshot {
		if !c.Verified() || c.Closed() {
			r.logger.Warn("purging unresponsive connection",
				"connection_id", c.ID,
				"role", c.Role,
			)
			r.Unregister(c.ID)
			continue
		}

		// A queue still full a whole cycle after a delivery failure is a
		// consumer that stopped draining; force a reconnect.
		if c.Unhealthy() && c.queueFull() {
			r.logger.Warn("disconnecting connection with saturated queue",
				"connection_id", c.ID,
				"role", c.Role,
			)
			r.Unregister(c.ID)
			continue
		}

		if c.DeviceID != "" {
			devices++
		} else {
			users++
		}

		c.markUnverified()
		if prober != nil {
			if err := prober.Probe(c); err != nil {
				r.logger.Warn("liveness probe failed",
					"connection_id", c.ID,
					"error", err,
				)
			}
		}
	}

	if gauge != nil {
		gauge.WriteConnectionGauge(users, devices)
	}
}
