package visitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
)

// HostLookup resolves user accounts for host validation.
// Satisfied by auth.UserRepository.
type HostLookup interface {
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// DoorLister enumerates the device_id channel names of active door
// devices. Satisfied by the device repository.
type DoorLister interface {
	ActiveDoorIDs(ctx context.Context) ([]string, error)
}

// Notifier delivers out-of-band messages (SMS) to a phone number.
// Optional; a nil notifier disables notifications.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// TransitionRecorder receives telemetry for committed transitions.
// Optional. Satisfied by metrics.Client.
type TransitionRecorder interface {
	WriteVisitTransition(fromStatus, toStatus, actorRole string)
}

// Registration carries the fields of a new visit request.
type Registration struct {
	Name                string
	NationalID          string
	Phone               string
	Email               string
	Company             string
	Purpose             string
	PhotoRef            string
	HostID              int64
	RegisteredByID      int64
	ExpectedDurationMin int
	Notes               string
}

// Service is the visitor lifecycle engine.
//
// It is the single mutation path for visitor status: transitions are
// validated against the lifecycle graph, authorised against the acting
// principal, serialised per visitor id, and only after the store commit
// succeeds are domain events handed to the registered sinks.
type Service struct {
	repo   Repository
	users  HostLookup
	logger *logging.Logger

	doors    DoorLister
	notifier Notifier
	sinks    []Sink
	recorder TransitionRecorder

	// locks serialises mutations per visitor id. Entries are refcounted
	// and removed when the last holder releases, so the map stays
	// proportional to in-flight mutations.
	mu    sync.Mutex
	locks map[int64]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a lifecycle engine backed by the given store.
func NewService(repo Repository, users HostLookup, logger *logging.Logger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		logger: logger,
		locks:  make(map[int64]*idLock),
	}
}

// SetDoorLister wires the source of active door channels for the
// approval side effect. Without one, approvals issue no door commands.
func (s *Service) SetDoorLister(doors DoorLister) {
	s.doors = doors
}

// SetNotifier wires an out-of-band notifier for visit decisions.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetRecorder wires optional transition telemetry.
func (s *Service) SetRecorder(rec TransitionRecorder) {
	s.recorder = rec
}

// AddSink registers a consumer of domain events. Sinks receive events
// in registration order, after the store commit.
func (s *Service) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// Register creates a new visit request in the pending state.
//
// The host id must reference an active user with the host role;
// otherwise ErrInvalidHost is returned and nothing is persisted.
// Emits a Registered event on success.
func (s *Service) Register(ctx context.Context, reg Registration) (*Visitor, error) {
	host, err := s.users.GetByID(ctx, reg.HostID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d", ErrInvalidHost, reg.HostID)
	}
	if host.Role != auth.RoleHost || !host.IsActive {
		return nil, fmt.Errorf("%w: user %d", ErrInvalidHost, reg.HostID)
	}

	v := &Visitor{
		Name:                reg.Name,
		NationalID:          reg.NationalID,
		Phone:               reg.Phone,
		Email:               reg.Email,
		Company:             reg.Company,
		Purpose:             reg.Purpose,
		PhotoRef:            reg.PhotoRef,
		HostID:              reg.HostID,
		RegisteredByID:      reg.RegisteredByID,
		ExpectedDurationMin: reg.ExpectedDurationMin,
		Notes:               reg.Notes,
		Status:              StatusPending,
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}

	s.emit(Registered{Visitor: v})
	s.notify(ctx, host.Phone,
		fmt.Sprintf("Visit request from %s (%s) awaits your approval.", v.Name, v.Purpose))

	return v, nil
}

// SetStatus applies a lifecycle transition to a visitor.
//
// Authorisation is enforced here, not at the transport boundary:
//   - approved/rejected: the owning host, or an admin
//   - checked_in/checked_out: a guard or an admin
//
// A transition whose source state does not match the allowed predecessor
// fails with ErrInvalidTransition and the visitor is left unmodified.
// Calls for the same visitor id are serialised, so of two racing
// approval-phase requests exactly one wins.
func (s *Service) SetStatus(ctx context.Context, visitorID int64, target Status, actor auth.Principal, notes string) (*Visitor, error) {
	if !IsValidStatus(target) || target == StatusPending {
		return nil, fmt.Errorf("%w: %q is not a transition target", ErrInvalidTransition, target)
	}

	unlock := s.lockVisitor(visitorID)
	defer unlock()

	v, err := s.repo.GetByID(ctx, visitorID)
	if err != nil {
		return nil, err
	}

	if err := authorize(target, actor, v); err != nil {
		return nil, err
	}

	if !CanTransition(v.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, target)
	}

	from := v.Status
	v.Status = target
	if notes != "" {
		v.Notes = notes
	}

	now := time.Now().UTC().Truncate(time.Second)
	switch target {
	case StatusCheckedIn:
		v.CheckinTime = &now
	case StatusCheckedOut:
		v.CheckoutTime = &now
	}

	if err := s.repo.UpdateStatus(ctx, v); err != nil {
		return nil, err
	}

	// Store committed; everything below is best-effort side effects.
	if s.recorder != nil {
		s.recorder.WriteVisitTransition(string(from), string(target), string(actor.Role))
	}

	switch target {
	case StatusApproved:
		s.emit(StatusChanged{Visitor: v, From: from, To: target})
		s.unlockDoors(ctx, v)
		s.notify(ctx, v.Phone, fmt.Sprintf("Your visit on %s has been approved.", v.CreatedAt.Format("2006-01-02")))
	case StatusRejected:
		s.emit(StatusChanged{Visitor: v, From: from, To: target})
		s.notify(ctx, v.Phone, "Your visit request has been declined.")
	case StatusCheckedIn:
		s.emit(CheckedIn{Visitor: v})
	case StatusCheckedOut:
		s.emit(CheckedOut{Visitor: v})
	}

	return v, nil
}

// Get returns a visitor by id.
func (s *Service) Get(ctx context.Context, id int64) (*Visitor, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns visitors visible to the actor: hosts see only their own
// visits, guards and admins see everything.
func (s *Service) List(ctx context.Context, actor auth.Principal, f Filter) ([]Visitor, error) {
	if actor.Role == auth.RoleHost {
		f.HostID = actor.UserID
	}
	return s.repo.List(ctx, f)
}

// authorize checks role/ownership rules for a transition target.
func authorize(target Status, actor auth.Principal, v *Visitor) error {
	switch target {
	case StatusApproved, StatusRejected:
		if actor.Role == auth.RoleAdmin {
			return nil
		}
		if actor.Role == auth.RoleHost && actor.UserID == v.HostID {
			return nil
		}
		return fmt.Errorf("%w: approval requires the owning host or an admin", ErrForbidden)
	case StatusCheckedIn, StatusCheckedOut:
		if actor.Role == auth.RoleGuard || actor.Role == auth.RoleAdmin {
			return nil
		}
		return fmt.Errorf("%w: check-in/out requires a guard or an admin", ErrForbidden)
	}
	return fmt.Errorf("%w: %q is not a transition target", ErrInvalidTransition, target)
}

// unlockDoors issues one unlock command event per active door device.
func (s *Service) unlockDoors(ctx context.Context, v *Visitor) {
	if s.doors == nil {
		return
	}

	doorIDs, err := s.doors.ActiveDoorIDs(ctx)
	if err != nil {
		s.logger.Error("listing active doors for unlock", "error", err, "visitor_id", v.ID)
		return
	}

	for _, deviceID := range doorIDs {
		s.emit(DeviceCommandIssued{
			DeviceID: deviceID,
			Command:  "unlock",
			Visitor:  v,
		})
	}
}

// emit hands an event to every sink, in registration order.
func (s *Service) emit(event Event) {
	for _, sink := range s.sinks {
		sink.Publish(event)
	}
}

// notify sends a best-effort out-of-band message. Failures are logged.
func (s *Service) notify(ctx context.Context, phone, message string) {
	if s.notifier == nil || phone == "" {
		return
	}
	if err := s.notifier.Send(ctx, phone, message); err != nil {
		s.logger.Warn("notification delivery failed", "error", err)
	}
}

// lockVisitor acquires the per-id mutation lock and returns the release func.
func (s *Service) lockVisitor(id int64) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
