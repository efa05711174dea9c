//go:build linux

package printer

import (
	"time"

	"tinygo.org/x/bluetooth"
)

// BlueZ only exposes write-without-response, so chunks are paced to keep the
// printer's receive buffer from overflowing.
const linuxChunkPause = 5 * time.Millisecond

func newBLEEndpoint(c bluetooth.DeviceCharacteristic) *bleEndpoint {
	return &bleEndpoint{
		uuid:  c.UUID().String(),
		read:  c.Read,
		write: c.WriteWithoutResponse,
		mtu:   c.GetMTU,
		pause: linuxChunkPause,
	}
}
