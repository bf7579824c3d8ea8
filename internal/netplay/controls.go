package netplay

import (
	"fmt"
	"strconv"
	"strings"
)

// MachineControl identifies a machine-level action (power, speed, state
// slots, debugging toggles). The numeric value travels on the wire.
type MachineControl int

const stateSlots = 13

const (
	Power MachineControl = iota
	PowerOff
	Reset
	PowerFry
	Pause
	Frame
	Fast
	Slow
	SpeedDefault
	VSynch
	Trace
	CPUTurbo
	SaveState0
)

const (
	SaveStateFile = SaveState0 + stateSlots
	LoadState0    = SaveStateFile + 1
	LoadStateLast = LoadState0 + stateSlots - 1
)

var machineControlNames = map[MachineControl]string{
	Power:         "POWER",
	PowerOff:      "POWER_OFF",
	Reset:         "RESET",
	PowerFry:      "POWER_FRY",
	Pause:         "PAUSE",
	Frame:         "FRAME",
	Fast:          "FAST",
	Slow:          "SLOW",
	SpeedDefault:  "SPEED_DEFAULT",
	VSynch:        "VSYNCH",
	Trace:         "TRACE",
	CPUTurbo:      "CPU_TURBO",
	SaveStateFile: "SAVE_STATE_FILE",
}

func (c MachineControl) String() string {
	if name, ok := machineControlNames[c]; ok {
		return name
	}
	switch {
	case c >= SaveState0 && c < SaveStateFile:
		return "SAVE_STATE_" + strconv.Itoa(int(c-SaveState0))
	case c >= LoadState0 && c <= LoadStateLast:
		return "LOAD_STATE_" + strconv.Itoa(int(c-LoadState0))
	}
	return fmt.Sprintf("MachineControl(%d)", int(c))
}

// ParseMachineControl resolves a name such as "RESET" or "SAVE_STATE_3".
func ParseMachineControl(name string) (MachineControl, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for c, n := range machineControlNames {
		if n == name {
			return c, nil
		}
	}
	for prefix, first := range map[string]MachineControl{"SAVE_STATE_": SaveState0, "LOAD_STATE_": LoadState0} {
		if slot, ok := strings.CutPrefix(name, prefix); ok {
			n, err := strconv.Atoi(slot)
			if err == nil && n >= 0 && n < stateSlots {
				return first + MachineControl(n), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown machine control %q", name)
}

// PeripheralControl identifies a user-interface action on peripherals and
// media. It never travels on the wire.
type PeripheralControl int

const (
	MachineLoadStateFile PeripheralControl = iota
	MachineSaveStateFile
	MachineLoadStateMenu
	MachineSaveStateMenu
	MachineSelect
	CopyString
	PasteString
	CaptureScreen
	ScreenToggleFullscreen
	SpeakerToggleMute
	DiskLoadFiles
	DiskAddFiles
	DiskLoadURL
	DiskLoadFilesAsDisk
	DiskLoadZipAsDisk
	DiskRemove
	DiskEmpty
	DiskEmpty720
	DiskEmpty360
	DiskSaveFile
	DiskSelect
	DiskPrevious
	DiskNext
	CartridgeLoadFile
	CartridgeLoadURL
	CartridgeRemove
	CartridgeLoadDataFile
	CartridgeSaveDataFile
	TapeLoadFile
	TapeLoadURL
	TapeRemove
	TapeEmpty
	TapeSaveFile
	TapeRewind
	TapeToEnd
	TapeSeekFwd
	TapeSeekBack
	TapeAutoRun
	AutoLoadFile
	AutoLoadURL
	peripheralControlCount
)

var peripheralControlNames = [peripheralControlCount]string{
	"MACHINE_LOAD_STATE_FILE", "MACHINE_SAVE_STATE_FILE", "MACHINE_LOAD_STATE_MENU", "MACHINE_SAVE_STATE_MENU",
	"MACHINE_SELECT", "COPY_STRING", "PASTE_STRING", "CAPTURE_SCREEN", "SCREEN_TOGGLE_FULLSCREEN", "SPEAKER_TOGGLE_MUTE",
	"DISK_LOAD_FILES", "DISK_ADD_FILES", "DISK_LOAD_URL", "DISK_LOAD_FILES_AS_DISK", "DISK_LOAD_ZIP_AS_DISK",
	"DISK_REMOVE", "DISK_EMPTY", "DISK_EMPTY_720", "DISK_EMPTY_360", "DISK_SAVE_FILE", "DISK_SELECT",
	"DISK_PREVIOUS", "DISK_NEXT",
	"CARTRIDGE_LOAD_FILE", "CARTRIDGE_LOAD_URL", "CARTRIDGE_REMOVE", "CARTRIDGE_LOAD_DATA_FILE", "CARTRIDGE_SAVE_DATA_FILE",
	"TAPE_LOAD_FILE", "TAPE_LOAD_URL", "TAPE_REMOVE", "TAPE_EMPTY", "TAPE_SAVE_FILE", "TAPE_REWIND", "TAPE_TO_END",
	"TAPE_SEEK_FWD", "TAPE_SEEK_BACK", "TAPE_AUTO_RUN",
	"AUTO_LOAD_FILE", "AUTO_LOAD_URL",
}

func (c PeripheralControl) String() string {
	if c >= 0 && c < peripheralControlCount {
		return peripheralControlNames[c]
	}
	return fmt.Sprintf("PeripheralControl(%d)", int(c))
}

// ParsePeripheralControl resolves a name such as "DISK_REMOVE".
func ParsePeripheralControl(name string) (PeripheralControl, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range peripheralControlNames {
		if n == name {
			return PeripheralControl(i), nil
		}
	}
	return 0, fmt.Errorf("unknown peripheral control %q", name)
}
