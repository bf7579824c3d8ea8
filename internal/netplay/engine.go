package netplay

import (
	"github.com/1ureka/netplay/internal/protocol"
	"github.com/1ureka/netplay/internal/util"
)

// tick applies one host update and answers it with exactly one client
// update. The host paces the client: ticks happen only on inbound updates.
func (c *Client) tick(u protocol.Update) {
	util.Stats.AddTick()
	d := c.deps

	switch u := u.(type) {
	case protocol.Full:
		d.Machine.LoadStateExtended(u.State)
		d.Keyboard.LoadState(u.Keyboard)
		c.out.setPorts(u.Ports)
		// Queued local events targeted the state just replaced.
		c.out.discard()

	case protocol.Incremental:
		for _, ch := range u.Controls {
			d.Machine.ControlStateChanged(MachineControl(ch.Control()), ch.Pressed())
		}
		for _, k := range u.Keys {
			d.Keyboard.ApplyMatrixChange(k.Line(), k.Column(), k.Pressed())
		}
		if u.Ports != nil {
			c.out.setPorts(*u.Ports)
		}
		if len(u.DiskOps) > 0 {
			d.Disk.NetProcessOperations(u.DiskOps)
		}
		// A Full snapshot is already post-pulse.
		d.Machine.VideoClockPulse()
	}

	d.Keyboard.ClockPulse()
	d.Hub.ControllersClockPulse()

	local := protocol.PortValues{d.Hub.ReadLocalControllerPort(0), d.Hub.ReadLocalControllerPort(1)}

	// Sent even when empty: it is the host's only liveness signal.
	if err := c.tr.SendUpdate(c.out.drain(local)); err != nil {
		util.LogError("failed to send NetPlay update: %v", err)
		c.leave(true, msgConnectionError)
	}
}

// ProcessMachineControl queues a local machine control for the host. Denied
// controls only produce a notification. Accepted controls are never applied
// locally; the host echoes them back in its updates.
func (c *Client) ProcessMachineControl(control MachineControl, pressed bool) {
	if !c.gate.AllowsMachine(control) {
		c.notify(DeniedMessage)
		return
	}
	c.out.pushControl(protocol.NewControlChange(int(control), pressed))
}

// ProcessKeyboardMatrixChange queues a local keyboard matrix change for the
// host without applying it locally.
func (c *Client) ProcessKeyboardMatrixChange(line, column int, pressed bool) {
	c.out.pushKey(protocol.NewKeyChange(line, column, pressed))
}

// CheckPeripheralControl reports whether a peripheral action may proceed.
// Denied actions produce a notification and return false.
func (c *Client) CheckPeripheralControl(control PeripheralControl) bool {
	if !c.gate.AllowsPeripheral(control) {
		c.notify(DeniedMessage)
		return false
	}
	return true
}

// ReadControllerPort returns the port value last received from the host.
func (c *Client) ReadControllerPort(port int) uint8 {
	return c.out.ports()[port&1]
}
