package app

import (
	"encoding/json"
	"sync"

	"github.com/pterm/pterm"

	"github.com/1ureka/netplay/internal/netplay"
	"github.com/1ureka/netplay/internal/protocol"
	"github.com/1ureka/netplay/internal/util"
)

// consoleRoom shows NetPlay status on the terminal and reports when the
// client falls back to standalone mode after having attached.
type consoleRoom struct {
	mu        sync.Mutex
	attached  bool
	lastError string
	ended     chan struct{}
	endOnce   sync.Once
}

func newConsoleRoom() *consoleRoom {
	return &consoleRoom{ended: make(chan struct{})}
}

func (r *consoleRoom) ShowMessage(text string, persistent, isError bool) {
	if isError {
		pterm.Error.Println(text)
	} else {
		pterm.Info.Println(text)
	}

	r.mu.Lock()
	if isError {
		r.lastError = text
	}
	r.mu.Unlock()
}

func (r *consoleRoom) EnterPendingMode() {
	util.LogDebug("room: pending")
	r.mu.Lock()
	r.attached = true
	r.mu.Unlock()
}

func (r *consoleRoom) EnterClientMode() {
	util.LogDebug("room: netplay client")
}

func (r *consoleRoom) EnterStandaloneMode() {
	util.LogDebug("room: standalone")
	r.mu.Lock()
	attached := r.attached
	r.mu.Unlock()

	if attached {
		r.endOnce.Do(func() { close(r.ended) })
	}
}

// Ended is closed once the session is over.
func (r *consoleRoom) Ended() <-chan struct{} {
	return r.ended
}

// LastError returns the most recent error message shown, if any.
func (r *consoleRoom) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// ---------------------------------------------------------------------------
// Headless collaborators
// ---------------------------------------------------------------------------

// memMachine keeps the last imported snapshot and the host's control state.
type memMachine struct {
	mu       sync.Mutex
	state    json.RawMessage
	controls map[netplay.MachineControl]bool
	pulses   int64
}

func newMemMachine() *memMachine {
	return &memMachine{controls: make(map[netplay.MachineControl]bool)}
}

func (m *memMachine) LoadStateExtended(state json.RawMessage) {
	m.mu.Lock()
	m.state = append(m.state[:0], state...)
	m.mu.Unlock()
	util.LogDebug("machine: loaded %d-byte snapshot", len(state))
}

func (m *memMachine) ControlStateChanged(control netplay.MachineControl, pressed bool) {
	m.mu.Lock()
	m.controls[control] = pressed
	m.mu.Unlock()
	util.LogDebug("machine: %s pressed=%t", control, pressed)
}

func (m *memMachine) VideoClockPulse() {
	m.mu.Lock()
	m.pulses++
	m.mu.Unlock()
}

// keyboardLines is the number of rows in the keyboard matrix.
const keyboardLines = 11

// memKeyboard is a keyboard matrix: one byte per line, a cleared bit is a
// pressed key.
type memKeyboard struct {
	mu     sync.Mutex
	matrix [keyboardLines]uint8
}

func newMemKeyboard() *memKeyboard {
	k := &memKeyboard{}
	for i := range k.matrix {
		k.matrix[i] = 0xff
	}
	return k
}

type keyboardState struct {
	Matrix []uint8 `json:"m"`
}

func (k *memKeyboard) LoadState(state json.RawMessage) {
	var ks keyboardState
	if err := json.Unmarshal(state, &ks); err != nil {
		util.LogWarning("keyboard: ignoring snapshot: %v", err)
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.matrix {
		k.matrix[i] = 0xff
		if i < len(ks.Matrix) {
			k.matrix[i] = ks.Matrix[i]
		}
	}
}

func (k *memKeyboard) ApplyMatrixChange(line, column int, pressed bool) {
	if line < 0 || line >= keyboardLines || column < 0 || column > 7 {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if pressed {
		k.matrix[line] &^= 1 << column
	} else {
		k.matrix[line] |= 1 << column
	}
}

func (k *memKeyboard) ClockPulse() {}

func (k *memKeyboard) row(line int) uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.matrix[line]
}

// idleHub has no local controllers attached.
type idleHub struct{}

func (idleHub) ControllersClockPulse()            {}
func (idleHub) ReadLocalControllerPort(int) uint8 { return protocol.PortReleased }

// logDisk records the host's drive operations in the debug log.
type logDisk struct{}

func (logDisk) NetProcessOperations(ops json.RawMessage) {
	util.LogDebug("disk: %s", ops)
}
