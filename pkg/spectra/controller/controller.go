// Package controller implements the instrument lifecycle state machine.
//
// A Controller binds at most one Instrument and gates the physical
// transitions between Vented, PumpingDown, Standby and Operate:
//
//	Initializing -> Vented | Fault
//	Vented       -> PumpingDown
//	PumpingDown  -> Standby | Fault
//	Standby      -> Operate | Vented
//	Operate      -> Standby
//	any          -> Fault
//
// Commands never block on the hardware. Asynchronous progress (pump-down
// completing, faults, lost vacuum) is picked up by Poll, which runs on a
// ticker when Options.PollInterval is set, and callers observe it through
// State.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/instrument"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
	"github.com/jamesainslie/spectra/pkg/spectra/tune"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// SoftwareVersion is reported by Controller.SoftwareVersion.
// Overridden at build time with -ldflags.
var SoftwareVersion = "dev"

// Preventer masks per transition.
const (
	operateMask  = ^types.OperatePreventer(0)
	pumpDownMask = types.PreventNoCommunication | types.PreventIncompatibleFirmware | types.PreventSafetySwitchTripped
	ventMask     = types.PreventNoCommunication
)

// Options configures a Controller.
type Options struct {
	// PollInterval drives Poll from a background goroutine. Zero leaves
	// polling to the caller.
	PollInterval time.Duration

	// SettleTime is how long WaitingAfterPumpDown stays set after vacuum
	// is reached.
	SettleTime time.Duration

	// PumpDownTimeout faults the instrument when vacuum is not reached in
	// time. Zero disables the timeout.
	PumpDownTimeout time.Duration

	// Now is the time source. Defaults to time.Now.
	Now func() time.Time
}

// StateChangeFunc observes state transitions. It is called without the
// controller lock held.
type StateChangeFunc func(from, to types.InstrumentState)

// Controller is the instrument lifecycle state machine. The zero value is
// not usable; create one with New.
type Controller struct {
	mu   sync.Mutex
	opts Options

	inst       *instrument.Instrument
	state      types.InstrumentState
	mode       types.OperationMode
	preventers types.OperatePreventer
	faultCause error

	pumpDownStarted time.Time
	vacuumReachedAt time.Time

	stopPoll context.CancelFunc
	pollDone chan struct{}

	listeners []StateChangeFunc
}

// New returns an unbound controller.
func New(opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		opts:       opts,
		state:      types.StateInitializing,
		preventers: types.PreventNoCommunication,
	}
}

// OnStateChange registers fn for every subsequent transition.
func (c *Controller) OnStateChange(fn StateChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// StartController binds inst. The state becomes Initializing and resolves
// to Vented or Fault on the next poll.
func (c *Controller) StartController(inst *instrument.Instrument) error {
	if inst == nil || inst.HardwareType() == types.HardwareUnknown {
		return errcode.ErrInstrumentTypeUnknown
	}

	c.mu.Lock()
	if c.inst != nil {
		c.mu.Unlock()
		return errcode.ErrControllerAlreadyStarted
	}

	from := c.state
	c.inst = inst
	c.state = types.StateInitializing
	c.mode = types.ModeIdle
	c.faultCause = nil
	c.pumpDownStarted = time.Time{}
	c.vacuumReachedAt = time.Time{}
	c.preventers = c.computePreventersLocked()

	if c.opts.PollInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		c.stopPoll = cancel
		c.pollDone = done
		go c.pollLoop(ctx, done)
	}
	c.mu.Unlock()

	logging.Get("controller").Info("controller started", "serial", inst.SerialNumber())
	c.emit(from, types.StateInitializing)
	return nil
}

// StopController unbinds the instrument. It fails while an acquisition
// session holds the instrument.
func (c *Controller) StopController() error {
	c.mu.Lock()
	if c.inst == nil {
		c.mu.Unlock()
		return errcode.ErrControllerNotStarted
	}
	if c.mode == types.ModeAcquiring {
		c.mu.Unlock()
		return fmt.Errorf("%w: acquisition in progress", errcode.ErrInstrumentIsOperating)
	}

	serial := c.inst.SerialNumber()
	c.inst = nil
	c.mode = types.ModeIdle
	c.preventers = types.PreventNoCommunication
	from := c.state
	c.state = types.StateInitializing
	cancel, done := c.stopPoll, c.pollDone
	c.stopPoll, c.pollDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	logging.Get("controller").Info("controller stopped", "serial", serial)
	c.emit(from, types.StateInitializing)
	return nil
}

// Started reports whether an instrument is bound.
func (c *Controller) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inst != nil
}

// Instrument returns the bound instrument, or nil.
func (c *Controller) Instrument() *instrument.Instrument {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inst
}

// State returns the current instrument state. An unbound controller
// reports Initializing.
func (c *Controller) State() types.InstrumentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OperationMode returns the current operation mode.
func (c *Controller) OperationMode() types.OperationMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// OperatePreventers returns the preventer bitmask from the last poll.
func (c *Controller) OperatePreventers() types.OperatePreventer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preventers
}

// FaultCause returns the reason for the last transition to Fault.
func (c *Controller) FaultCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faultCause
}

// SoftwareVersion returns the control software version.
func (c *Controller) SoftwareVersion() string {
	return SoftwareVersion
}

// CanOperate reports whether Operate would succeed.
func (c *Controller) CanOperate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canOperateLocked()
}

// CanStandby reports whether Standby would succeed.
func (c *Controller) CanStandby() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inst != nil && c.state == types.StateOperate
}

// CanVent reports whether Vent would succeed.
func (c *Controller) CanVent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canVentLocked()
}

// CanPumpDown reports whether PumpDown would succeed.
func (c *Controller) CanPumpDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canPumpDownLocked()
}

func (c *Controller) canOperateLocked() bool {
	return c.inst != nil && c.state == types.StateStandby && c.preventers&operateMask == 0
}

func (c *Controller) canVentLocked() bool {
	return c.inst != nil &&
		(c.state == types.StateStandby || c.state == types.StatePumpingDown) &&
		c.preventers&ventMask == 0
}

func (c *Controller) canPumpDownLocked() bool {
	return c.inst != nil && c.state == types.StateVented && c.preventers&pumpDownMask == 0
}

// Operate switches on the high voltages. Valid only from Standby with no
// preventer set; otherwise the state is left unchanged.
func (c *Controller) Operate() error {
	c.mu.Lock()
	if c.inst == nil {
		c.mu.Unlock()
		return errcode.ErrControllerNotStarted
	}
	if !c.canOperateLocked() {
		err := fmt.Errorf("%w: state %s, preventers %s", errcode.ErrOperatingNotAllowed, c.state, c.preventers)
		c.mu.Unlock()
		return err
	}
	if err := c.inst.SetHighVoltage(true); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", errcode.ErrOperatingNotAllowed, err)
	}
	from := c.transitionLocked(types.StateOperate)
	c.mode = types.ModeIdle
	c.mu.Unlock()

	c.emit(from, types.StateOperate)
	return nil
}

// Standby switches off the high voltages. Valid only from Operate.
func (c *Controller) Standby() error {
	c.mu.Lock()
	if c.inst == nil {
		c.mu.Unlock()
		return errcode.ErrControllerNotStarted
	}
	if c.state != types.StateOperate {
		err := fmt.Errorf("%w: state %s", errcode.ErrStandbyNotAllowed, c.state)
		c.mu.Unlock()
		return err
	}
	if err := c.inst.SetHighVoltage(false); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", errcode.ErrStandbyNotAllowed, err)
	}
	from := c.transitionLocked(types.StateStandby)
	c.mu.Unlock()

	c.emit(from, types.StateStandby)
	return nil
}

// Vent stops the pump and lets the instrument up to atmosphere. Valid from
// Standby or PumpingDown.
func (c *Controller) Vent() error {
	c.mu.Lock()
	if c.inst == nil {
		c.mu.Unlock()
		return errcode.ErrControllerNotStarted
	}
	if c.state == types.StateOperate {
		c.mu.Unlock()
		return fmt.Errorf("%w: standby first", errcode.ErrInstrumentIsOperating)
	}
	if !c.canVentLocked() {
		err := fmt.Errorf("%w: cannot vent from %s", errcode.ErrNotSupported, c.state)
		c.mu.Unlock()
		return err
	}
	if err := c.inst.SetHighVoltage(false); err != nil {
		logging.Get("controller").Warn("high voltage off failed during vent", "error", err)
	}
	if err := c.inst.SetPump(false); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", errcode.ErrWriteFailed, err)
	}
	from := c.transitionLocked(types.StateVented)
	c.mu.Unlock()

	c.emit(from, types.StateVented)
	return nil
}

// PumpDown starts the vacuum pump. Valid only from Vented; the state moves
// to Standby or Fault on a later poll.
func (c *Controller) PumpDown() error {
	c.mu.Lock()
	if c.inst == nil {
		c.mu.Unlock()
		return errcode.ErrControllerNotStarted
	}
	switch c.state {
	case types.StatePumpingDown, types.StateStandby, types.StateOperate:
		err := fmt.Errorf("%w: state %s", errcode.ErrPumpAlreadyOn, c.state)
		c.mu.Unlock()
		return err
	}
	if !c.canPumpDownLocked() {
		err := fmt.Errorf("%w: cannot pump down from %s, preventers %s", errcode.ErrNotSupported, c.state, c.preventers)
		c.mu.Unlock()
		return err
	}
	if err := c.inst.SetPump(true); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", errcode.ErrWriteFailed, err)
	}
	c.pumpDownStarted = c.opts.Now()
	c.vacuumReachedAt = time.Time{}
	from := c.transitionLocked(types.StatePumpingDown)
	c.mu.Unlock()

	c.emit(from, types.StatePumpingDown)
	return nil
}

// PumpDownRemaining returns the instrument's estimate of the time left
// until vacuum.
func (c *Controller) PumpDownRemaining() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inst == nil {
		return 0, errcode.ErrControllerNotStarted
	}
	return c.inst.PumpDownRemaining(), nil
}

// SetOperationMode is used by the acquisition and tuning layers to claim the
// instrument. Modes other than Idle require the Operate state.
func (c *Controller) SetOperationMode(mode types.OperationMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inst == nil {
		return errcode.ErrControllerNotStarted
	}
	if mode != types.ModeIdle && c.state != types.StateOperate {
		return fmt.Errorf("%w: state %s", errcode.ErrInstrumentNotOperating, c.state)
	}
	c.mode = mode
	return nil
}

// TuneParameters returns the bound instrument's tune as a document.
func (c *Controller) TuneParameters() (string, error) {
	inst := c.Instrument()
	if inst == nil {
		return "", errcode.ErrControllerNotStarted
	}
	return tune.MarshalDocument(inst.SourceType(), inst.Tune().Snapshot())
}

// SetTuneParameters applies a tune document atomically.
func (c *Controller) SetTuneParameters(doc string) error {
	inst := c.Instrument()
	if inst == nil {
		return errcode.ErrControllerNotStarted
	}
	values, err := tune.ParseDocument(doc)
	if err != nil {
		return err
	}
	if err := inst.ApplyTune(values); err != nil {
		return err
	}
	logging.Get("controller").Info("tune parameters applied", "count", len(values))
	return nil
}

// IonSourceOptimization returns the ion source part of the tune as a
// document.
func (c *Controller) IonSourceOptimization() (string, error) {
	inst := c.Instrument()
	if inst == nil {
		return "", errcode.ErrControllerNotStarted
	}
	return tune.MarshalSourceDocument(inst.SourceType(), inst.Tune().Snapshot())
}

// SetIonSourceOptimization applies an ion source document atomically. A
// document written for another source type is rejected.
func (c *Controller) SetIonSourceOptimization(doc string) error {
	inst := c.Instrument()
	if inst == nil {
		return errcode.ErrControllerNotStarted
	}
	source, values, err := tune.ParseSourceDocument(doc)
	if err != nil {
		return err
	}
	if source != types.SourceNone && source != inst.SourceType() {
		return fmt.Errorf("%w: document for %s source, instrument has %s",
			errcode.ErrParsingFailed, source, inst.SourceType())
	}
	if err := inst.ApplyTune(values); err != nil {
		return err
	}
	logging.Get("controller").Info("ion source optimization applied", "count", len(values))
	return nil
}

func (c *Controller) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Poll()
		}
	}
}

func (c *Controller) emit(from, to types.InstrumentState) {
	if from == to {
		return
	}
	c.mu.Lock()
	listeners := append([]StateChangeFunc(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(from, to)
	}
}

// transitionLocked sets the new state and returns the previous one.
func (c *Controller) transitionLocked(to types.InstrumentState) types.InstrumentState {
	from := c.state
	c.state = to
	if to != types.StateOperate {
		c.mode = types.ModeIdle
	}
	c.preventers = c.computePreventersLocked()
	if from != to {
		logging.Get("controller").Info("state changed", "from", from, "to", to)
	}
	return from
}
