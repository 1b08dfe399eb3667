package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// readbacks is one consistent read of the binary readbacks the state
// machine depends on.
type readbacks struct {
	comm, firmware, pumpSpeed, vacuum, safety, pumpPower bool
}

func (c *Controller) readLocked() readbacks {
	var rb readbacks
	if c.inst == nil {
		return rb
	}
	read := func(r types.BinaryReadback) bool {
		v, err := c.inst.BinaryReadback(r)
		return err == nil && v
	}
	rb.comm = read(types.RBCommunicationOK)
	if !rb.comm {
		return rb
	}
	rb.firmware = read(types.RBFirmwareVersionOK)
	rb.pumpSpeed = read(types.RBPumpSpeedOK)
	rb.vacuum = read(types.RBVacuumOK)
	rb.safety = read(types.RBSafetySwitchOK)
	rb.pumpPower = read(types.RBPumpPower)
	return rb
}

func (c *Controller) computePreventersLocked() types.OperatePreventer {
	return c.preventersFrom(c.readLocked())
}

func (c *Controller) preventersFrom(rb readbacks) types.OperatePreventer {
	if !rb.comm {
		return types.PreventNoCommunication
	}

	var p types.OperatePreventer
	if !rb.firmware {
		p |= types.PreventIncompatibleFirmware
	}
	if !rb.pumpPower {
		p |= types.PreventPumpOff
	}
	if !rb.pumpSpeed {
		p |= types.PreventPumpSpeedTooLow
	}
	if !rb.vacuum {
		p |= types.PreventVacuumTooHigh
	}
	if !rb.safety {
		p |= types.PreventSafetySwitchTripped
	}
	if c.inst.SourceType() == types.SourceNone {
		p |= types.PreventNoIonSource
	}
	if c.settlingLocked() {
		p |= types.PreventWaitingAfterPumpDown
	}
	return p
}

func (c *Controller) settlingLocked() bool {
	if c.vacuumReachedAt.IsZero() || c.opts.SettleTime <= 0 {
		return false
	}
	return c.opts.Now().Sub(c.vacuumReachedAt) < c.opts.SettleTime
}

// Poll reads the instrument and advances any asynchronous transition. It is
// a no-op on an unbound controller.
func (c *Controller) Poll() {
	c.mu.Lock()
	if c.inst == nil {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.advanceLocked()
	to := c.state
	c.mu.Unlock()

	c.emit(from, to)
}

func (c *Controller) advanceLocked() {
	if fault := c.pendingFault(); fault != nil {
		c.faultLocked(fault)
		return
	}

	rb := c.readLocked()
	now := c.opts.Now()

	if !rb.comm && c.state != types.StateFault {
		c.faultLocked(errcode.ErrLostUSBConnection)
		return
	}

	switch c.state {
	case types.StateInitializing:
		if !rb.firmware {
			c.faultLocked(errcode.ErrIncompatibleFirmware)
			return
		}
		c.transitionLocked(types.StateVented)

	case types.StatePumpingDown:
		if rb.vacuum && rb.pumpSpeed {
			c.vacuumReachedAt = now
			c.transitionLocked(types.StateStandby)
			return
		}
		if c.opts.PumpDownTimeout > 0 && now.Sub(c.pumpDownStarted) > c.opts.PumpDownTimeout {
			if err := c.inst.SetPump(false); err != nil {
				logging.Get("controller").Warn("pump off failed after pump-down timeout", "error", err)
			}
			c.faultLocked(fmt.Errorf("%w: no vacuum after %s", errcode.ErrVacuumTooLow, c.opts.PumpDownTimeout))
			return
		}

	case types.StateOperate:
		c.preventers = c.preventersFrom(rb)
		if c.preventers != 0 {
			if err := c.inst.SetHighVoltage(false); err != nil {
				logging.Get("controller").Warn("high voltage off failed", "error", err)
			}
			logging.Get("controller").Warn("operate interrupted", "preventers", c.preventers)
			c.transitionLocked(types.StateStandby)
			return
		}

	case types.StateStandby:
		if !rb.vacuum {
			c.vacuumReachedAt = time.Time{}
		}
	}

	c.preventers = c.preventersFrom(rb)
}

func (c *Controller) pendingFault() error {
	select {
	case err, ok := <-c.inst.Faults():
		if !ok {
			return errors.New("fault channel closed")
		}
		return err
	default:
		return nil
	}
}

func (c *Controller) faultLocked(cause error) {
	if c.state == types.StateFault {
		return
	}
	c.faultCause = cause
	logging.Get("controller").Error("instrument fault", "state", c.state, "cause", cause)
	if err := c.inst.SetHighVoltage(false); err != nil {
		logging.Get("controller").Warn("high voltage off failed during fault", "error", err)
	}
	c.transitionLocked(types.StateFault)
}
