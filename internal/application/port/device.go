package port

import "time"

// Device 已打开的设备流。Read 在读超时到期且无数据时返回 (0, nil)
type Device interface {
	Read(p []byte) (int, error)
	Close() error
}

// DeviceOpener 按端口标识打开设备
type DeviceOpener interface {
	Open(portID string, readTimeout time.Duration) (Device, error)
}

// PortLister 枚举可用端口
type PortLister interface {
	List() ([]string, error)
}
