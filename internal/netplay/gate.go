package netplay

import "fmt"

// DeniedMessage is shown when a remote participant tries a gated action.
const DeniedMessage = "Function not available in NetPlay Client mode"

// Gate holds the static deny sets applied to a remote participant's local
// actions. It is immutable after construction.
type Gate struct {
	machine    map[MachineControl]struct{}
	peripheral map[PeripheralControl]struct{}
}

func defaultDeniedMachine() []MachineControl {
	denied := []MachineControl{SaveStateFile, PowerFry, VSynch, Trace}
	for slot := MachineControl(0); slot < stateSlots; slot++ {
		denied = append(denied, SaveState0+slot, LoadState0+slot)
	}
	return denied
}

var defaultDeniedPeripheral = []PeripheralControl{
	MachineLoadStateFile, MachineSaveStateFile, MachineLoadStateMenu, MachineSaveStateMenu,
	MachineSelect, CopyString, CaptureScreen,
	DiskLoadFiles, DiskAddFiles, DiskLoadURL, DiskLoadFilesAsDisk, DiskLoadZipAsDisk, DiskRemove,
	DiskEmpty, DiskEmpty720, DiskEmpty360, DiskSaveFile, DiskSelect, DiskPrevious, DiskNext,
	CartridgeLoadFile, CartridgeLoadURL, CartridgeRemove, CartridgeLoadDataFile, CartridgeSaveDataFile,
	TapeLoadFile, TapeLoadURL, TapeRemove, TapeEmpty, TapeSaveFile,
	TapeRewind, TapeToEnd, TapeSeekFwd, TapeSeekBack, TapeAutoRun,
	AutoLoadFile, AutoLoadURL,
}

// NewGate builds the built-in deny sets plus the extra control names given.
func NewGate(extraMachine, extraPeripheral []string) (*Gate, error) {
	g := &Gate{
		machine:    make(map[MachineControl]struct{}),
		peripheral: make(map[PeripheralControl]struct{}),
	}
	for _, c := range defaultDeniedMachine() {
		g.machine[c] = struct{}{}
	}
	for _, c := range defaultDeniedPeripheral {
		g.peripheral[c] = struct{}{}
	}

	for _, name := range extraMachine {
		c, err := ParseMachineControl(name)
		if err != nil {
			return nil, fmt.Errorf("deny_machine_controls: %w", err)
		}
		g.machine[c] = struct{}{}
	}
	for _, name := range extraPeripheral {
		c, err := ParsePeripheralControl(name)
		if err != nil {
			return nil, fmt.Errorf("deny_peripheral_controls: %w", err)
		}
		g.peripheral[c] = struct{}{}
	}
	return g, nil
}

// AllowsMachine reports whether c may be sent to the host.
func (g *Gate) AllowsMachine(c MachineControl) bool {
	_, denied := g.machine[c]
	return !denied
}

// AllowsPeripheral reports whether c may run while attached.
func (g *Gate) AllowsPeripheral(c PeripheralControl) bool {
	_, denied := g.peripheral[c]
	return !denied
}
