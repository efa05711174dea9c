//go:build darwin || windows

package printer

import "tinygo.org/x/bluetooth"

func newBLEEndpoint(c bluetooth.DeviceCharacteristic) *bleEndpoint {
	return &bleEndpoint{
		uuid:  c.UUID().String(),
		read:  c.Read,
		write: c.Write,
		mtu:   c.GetMTU,
	}
}
