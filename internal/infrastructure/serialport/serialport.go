package serialport

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"

	"standlog/internal/application/port"
)

// BaudRate 试验台固件的固定波特率
const BaudRate = 115200

var (
	ErrPortBusy         = errors.New("port busy")
	ErrPortNotFound     = errors.New("port not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrEmptyPortID      = errors.New("port id empty")
)

// Opener 基于 go.bug.st/serial 打开串口，8N1
type Opener struct{}

func NewOpener() *Opener { return &Opener{} }

func (o *Opener) Open(portID string, readTimeout time.Duration) (port.Device, error) {
	portID = strings.TrimSpace(portID)
	if portID == "" {
		return nil, ErrEmptyPortID
	}

	p, err := serial.Open(portID, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, classify(err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return p, nil
}

// List 返回系统中的串口名称，按名称排序
func (o *Opener) List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

func classify(err error) error {
	var pe *serial.PortError
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code() {
	case serial.PortBusy:
		return fmt.Errorf("%w: %v", ErrPortBusy, err)
	case serial.PortNotFound, serial.InvalidSerialPort:
		return fmt.Errorf("%w: %v", ErrPortNotFound, err)
	case serial.PermissionDenied:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}

var (
	_ port.DeviceOpener = (*Opener)(nil)
	_ port.PortLister   = (*Opener)(nil)
)
