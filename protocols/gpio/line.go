package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fieldgw/igw/core"
)

const sysfsRoot = "/sys/class/gpio"

// line is the minimal set of operations the channel needs from a GPIO
// line, kept as an interface so tests can swap in an in-memory fake
// instead of touching /sys/class/gpio.
type line interface {
	export() error
	unexport() error
	setDirection(dir core.GpioDirection) error
	setActiveLow(active bool) error
	read() (bool, error)
	write(v bool) error
	close() error
}

// sysfsLine drives one pin through the Linux sysfs GPIO interface
// (export/unexport + per-pin direction/active_low/value files). The chip
// name is carried for diagnostics only: sysfs addresses lines by a single
// global number, so a point's configured pin is that number directly.
type sysfsLine struct {
	chip string
	pin  uint32
}

func newSysfsLine(chip string, pin uint32) *sysfsLine {
	return &sysfsLine{chip: chip, pin: pin}
}

func (l *sysfsLine) pinDir() string {
	return filepath.Join(sysfsRoot, fmt.Sprintf("gpio%d", l.pin))
}

func (l *sysfsLine) export() error {
	if _, err := os.Stat(l.pinDir()); err == nil {
		return nil
	}
	return writeSysfsFile(filepath.Join(sysfsRoot, "export"), strconv.FormatUint(uint64(l.pin), 10))
}

func (l *sysfsLine) unexport() error {
	return writeSysfsFile(filepath.Join(sysfsRoot, "unexport"), strconv.FormatUint(uint64(l.pin), 10))
}

func (l *sysfsLine) setDirection(dir core.GpioDirection) error {
	val := "in"
	if dir == core.GpioOutput {
		val = "out"
	}
	return writeSysfsFile(filepath.Join(l.pinDir(), "direction"), val)
}

func (l *sysfsLine) setActiveLow(active bool) error {
	val := "0"
	if active {
		val = "1"
	}
	return writeSysfsFile(filepath.Join(l.pinDir(), "active_low"), val)
}

func (l *sysfsLine) read() (bool, error) {
	raw, err := os.ReadFile(filepath.Join(l.pinDir(), "value"))
	if err != nil {
		return false, err
	}
	return parseSysfsBool(raw)
}

func (l *sysfsLine) write(v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfsFile(filepath.Join(l.pinDir(), "value"), val)
}

func (l *sysfsLine) close() error {
	return l.unexport()
}

func writeSysfsFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(value)
	return err
}

func parseSysfsBool(raw []byte) (bool, error) {
	s := string(raw)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("gpio: unexpected value file content %q", s)
	}
}
