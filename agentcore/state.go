package agentcore

import (
	"fmt"
	"io"
	"sync"

	"github.com/agentwire/remotecore/channel"
)

// Lifecycle is the per-attempt connection state (spec.md §3, §4.5).
type Lifecycle int

const (
	Initialized Lifecycle = iota
	BeforeProperties
	AfterProperties
	Approved
	BeforeChannel
	AfterChannel
	ChannelClosed
	Disconnected
	Rejected
)

var lifecycleNames = [...]string{
	"INITIALIZED", "BEFORE_PROPERTIES", "AFTER_PROPERTIES", "APPROVED",
	"BEFORE_CHANNEL", "AFTER_CHANNEL", "CHANNEL_CLOSED", "DISCONNECTED", "REJECTED",
}

func (l Lifecycle) String() string {
	if l < 0 || int(l) >= len(lifecycleNames) {
		return "UNKNOWN"
	}
	return lifecycleNames[l]
}

// legalTransitions enumerates the declared order of §4.5: a fire* call
// that does not match one of these edges is a fatal programming error.
var legalTransitions = map[Lifecycle][]Lifecycle{
	Initialized:      {BeforeProperties},
	BeforeProperties: {AfterProperties, Rejected},
	AfterProperties:  {Approved, Rejected},
	Approved:         {BeforeChannel},
	BeforeChannel:    {AfterChannel},
	AfterChannel:     {ChannelClosed, Disconnected},
	ChannelClosed:    {Disconnected},
}

func canTransition(from, to Lifecycle) bool {
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Listener observes one connection attempt's phase transitions. Each
// callback receives an Event scoped to that single call: it may call
// Ignore (drop out of the remaining phases of this attempt) or
// Approve/Reject (claim sole ownership of the attempt from this point
// on). Calling neither leaves the listener in the active set for the next
// phase without claiming anything.
//
// Embed BaseListener to get no-op defaults for phases a listener doesn't
// care about.
type Listener interface {
	OnBeforeProperties(ev *Event)
	OnAfterProperties(ev *Event)
	OnBeforeChannel(ev *Event)
	OnAfterChannel(ev *Event)
	OnChannelClosed(ev *Event)
	OnDisconnected(ev *Event)
}

// BaseListener supplies no-op implementations of every Listener method so
// concrete listeners only override the phases they act on.
type BaseListener struct{}

func (BaseListener) OnBeforeProperties(ev *Event) {}
func (BaseListener) OnAfterProperties(ev *Event)  {}
func (BaseListener) OnBeforeChannel(ev *Event)    {}
func (BaseListener) OnAfterChannel(ev *Event)     {}
func (BaseListener) OnChannelClosed(ev *Event)    {}
func (BaseListener) OnDisconnected(ev *Event)     {}

// Event is handed to exactly one Listener callback invocation. Its
// ownership methods are only valid for the duration of that call; this is
// the "per-call local state instead of a thread-local re-entrancy marker"
// design note (spec.md §9) — there is no global marker to misuse because
// the capability lives only on the stack of the call that received it.
type Event struct {
	state    *ConnState
	active   bool
	ignored  bool
	claimed  bool
	rejected bool
	reason   string
}

func (e *Event) requireActive() {
	if !e.active {
		panic("agentcore: Event method called outside its dispatch callback")
	}
}

// Ignore removes this listener from consideration for the remainder of
// this attempt.
func (e *Event) Ignore() {
	e.requireActive()
	e.ignored = true
}

// Approve claims ownership of this attempt: from this phase onward only
// this listener's callbacks run.
func (e *Event) Approve() {
	e.requireActive()
	e.claimed = true
}

// Reject claims ownership and ends the attempt with the given reason.
func (e *Event) Reject(reason string) {
	e.requireActive()
	e.claimed = true
	e.rejected = true
	e.reason = reason
}

// State returns the ConnState this event belongs to, for reading
// phase-appropriate fields (Properties, ChannelBuilder, Channel, ...).
func (e *Event) State() *ConnState {
	return e.state
}

// ConnState is the mutable per-attempt state machine of spec.md §4.5. It
// is mutated only by the goroutine running the dispatch for the current
// phase; concurrent reads of accessor methods are safe.
type ConnState struct {
	mu sync.Mutex

	lifecycle         Lifecycle
	socket            io.ReadWriteCloser
	remoteDescription string
	properties        map[string]string
	channelBuilder    channel.Builder
	channel           channel.Conn
	rejection         string
	closeCause        error
	stash             interface{}

	listeners []Listener
	owner     Listener
}

// NewConnState creates a fresh INITIALIZED attempt with the given
// listener chain, in order.
func NewConnState(socket io.ReadWriteCloser, remoteDescription string, listeners []Listener) *ConnState {
	cp := make([]Listener, len(listeners))
	copy(cp, listeners)
	return &ConnState{
		lifecycle:         Initialized,
		socket:            socket,
		remoteDescription: remoteDescription,
		listeners:         cp,
	}
}

func (s *ConnState) Lifecycle() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

func (s *ConnState) RemoteDescription() string {
	return s.remoteDescription
}

func (s *ConnState) Socket() io.ReadWriteCloser {
	return s.socket
}

// Properties returns the negotiated property map. Readable only at or
// after AFTER_PROPERTIES (spec.md §3 invariant).
func (s *ConnState) Properties() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle < AfterProperties {
		return nil, Internalf("properties not readable before AFTER_PROPERTIES (currently %s)", s.lifecycle)
	}
	return s.properties, nil
}

// ChannelBuilder returns the pending channel builder. Readable only
// during BEFORE_CHANNEL; consumed (cleared) at AFTER_CHANNEL.
func (s *ConnState) ChannelBuilder() (channel.Builder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle != BeforeChannel {
		return nil, Internalf("channel_builder not readable outside BEFORE_CHANNEL (currently %s)", s.lifecycle)
	}
	return s.channelBuilder, nil
}

// Channel returns the established channel. Readable only at or after
// AFTER_CHANNEL; may be nil in DISCONNECTED if the peer closed first.
func (s *ConnState) Channel() (channel.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle < AfterChannel {
		return nil, Internalf("channel not readable before AFTER_CHANNEL (currently %s)", s.lifecycle)
	}
	return s.channel, nil
}

// Rejection returns the reason an attempt was rejected, if any.
func (s *ConnState) Rejection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejection
}

// CloseCause returns the cause recorded at CHANNEL_CLOSED, if any.
func (s *ConnState) CloseCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCause
}

// Stash returns the owning listener's opaque private state, set only
// after APPROVED.
func (s *ConnState) Stash() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stash
}

// SetStash sets the owning listener's opaque private state. Valid only
// after APPROVED.
func (s *ConnState) SetStash(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle < Approved {
		return Internalf("stash not writable before APPROVED (currently %s)", s.lifecycle)
	}
	s.stash = v
	return nil
}

func (s *ConnState) checkTransition(to Lifecycle) error {
	s.mu.Lock()
	from := s.lifecycle
	s.mu.Unlock()
	if !canTransition(from, to) {
		return Internalf("illegal state transition %s -> %s", from, to)
	}
	return nil
}

// dispatchPhase runs one phase's listener fan-out (spec.md §4.5 dispatch
// semantics 1-3): set lifecycle, iterate the active listener sequence,
// invoke the phase callback, and apply ignore/claim effects. Once a
// listener claims ownership the remaining listeners in this same
// iteration are not invoked — ownership transfer is atomic, not merely
// effective starting next phase.
func (s *ConnState) dispatchPhase(newLifecycle Lifecycle, invoke func(Listener, *Event)) (claimed bool, rejected bool, reason string) {
	s.mu.Lock()
	s.lifecycle = newLifecycle
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	remaining := make([]Listener, 0, len(listeners))
	var owner Listener
	var ownerRejected bool
	var ownerReason string
	didClaim := false

	for _, l := range listeners {
		ev := &Event{state: s, active: true}
		invoke(l, ev)
		ev.active = false

		if ev.claimed {
			owner = l
			ownerRejected = ev.rejected
			ownerReason = ev.reason
			didClaim = true
			break
		}
		if !ev.ignored {
			remaining = append(remaining, l)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if didClaim {
		s.listeners = []Listener{owner}
		s.owner = owner
		if ownerRejected {
			s.lifecycle = Rejected
			s.rejection = ownerReason
		} else {
			s.lifecycle = Approved
		}
	} else {
		s.listeners = remaining
	}
	return didClaim, ownerRejected, ownerReason
}

// FireBeforeProperties dispatches the BEFORE_PROPERTIES phase. A listener
// may Reject here (e.g. the identity-verifier on a TLS certificate
// mismatch); lack of a claim is not itself terminal — ownership is only
// required by the end of AFTER_PROPERTIES (spec.md §4.5 point 4; see
// SPEC_FULL.md §12 for why this implementation does not also require a
// claim at the end of BEFORE_PROPERTIES, despite that point's literal
// wording naming both phases).
func (s *ConnState) FireBeforeProperties() error {
	if err := s.checkTransition(BeforeProperties); err != nil {
		return err
	}
	s.dispatchPhase(BeforeProperties, func(l Listener, ev *Event) { l.OnBeforeProperties(ev) })
	return nil
}

// FireAfterProperties dispatches the AFTER_PROPERTIES phase with the
// given negotiated properties. If no listener claims ownership by the end
// of this phase, the attempt is rejected with "no listeners interested in
// connection" (or the last rejection reason already recorded).
func (s *ConnState) FireAfterProperties(properties map[string]string) error {
	if err := s.checkTransition(AfterProperties); err != nil {
		return err
	}
	s.mu.Lock()
	s.properties = properties
	s.mu.Unlock()

	claimed, _, _ := s.dispatchPhase(AfterProperties, func(l Listener, ev *Event) { l.OnAfterProperties(ev) })
	if !claimed {
		s.mu.Lock()
		s.lifecycle = Rejected
		if s.rejection == "" {
			s.rejection = "no listeners interested in connection"
		}
		s.mu.Unlock()
	}
	return nil
}

// FireBeforeChannel dispatches BEFORE_CHANNEL with the given builder
// available via ChannelBuilder for the duration of this phase.
func (s *ConnState) FireBeforeChannel(builder channel.Builder) error {
	if err := s.checkTransition(BeforeChannel); err != nil {
		return err
	}
	s.mu.Lock()
	s.lifecycle = BeforeChannel
	s.channelBuilder = builder
	s.mu.Unlock()

	s.dispatchPhase(BeforeChannel, func(l Listener, ev *Event) { l.OnBeforeChannel(ev) })
	return nil
}

// FireAfterChannel dispatches AFTER_CHANNEL, consuming the channel
// builder and publishing ch via Channel.
func (s *ConnState) FireAfterChannel(ch channel.Conn) error {
	if err := s.checkTransition(AfterChannel); err != nil {
		return err
	}
	s.mu.Lock()
	s.lifecycle = AfterChannel
	s.channelBuilder = nil
	s.channel = ch
	s.mu.Unlock()

	s.dispatchPhase(AfterChannel, func(l Listener, ev *Event) { l.OnAfterChannel(ev) })
	return nil
}

// FireChannelClosed dispatches CHANNEL_CLOSED with the given cause
// (may be nil).
func (s *ConnState) FireChannelClosed(cause error) error {
	if err := s.checkTransition(ChannelClosed); err != nil {
		return err
	}
	s.mu.Lock()
	s.lifecycle = ChannelClosed
	s.closeCause = cause
	s.mu.Unlock()

	s.dispatchPhase(ChannelClosed, func(l Listener, ev *Event) { l.OnChannelClosed(ev) })
	return nil
}

// FireDisconnected dispatches DISCONNECTED. If the attempt is still
// AFTER_CHANNEL, CHANNEL_CLOSED is auto-fired first with a nil cause
// (spec.md §4.5).
func (s *ConnState) FireDisconnected() error {
	s.mu.Lock()
	cur := s.lifecycle
	s.mu.Unlock()
	if cur == AfterChannel {
		if err := s.FireChannelClosed(nil); err != nil {
			return err
		}
	}
	if err := s.checkTransition(Disconnected); err != nil {
		return err
	}
	s.mu.Lock()
	s.lifecycle = Disconnected
	s.mu.Unlock()

	s.dispatchPhase(Disconnected, func(l Listener, ev *Event) { l.OnDisconnected(ev) })
	return nil
}

func (s *ConnState) String() string {
	return fmt.Sprintf("ConnState{%s, %s}", s.remoteDescription, s.Lifecycle())
}
