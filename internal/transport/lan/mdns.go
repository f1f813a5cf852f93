package lan

import (
	"fmt"

	"github.com/grandcat/zeroconf"

	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/models"
)

// advertiser wraps the mDNS registration for the sync service.
type advertiser struct {
	server *zeroconf.Server
}

// advertise registers the sync service on the local domain. The TXT
// record carries enough for a peer to pre-filter before connecting.
func advertise(deviceID string, port int, info models.DeviceInfo) (*advertiser, error) {
	txt := []string{
		"deviceId=" + deviceID,
		"deviceName=" + info.DeviceName,
		"version=" + info.AppVersion,
		"workspace=" + info.WorkspaceName,
	}

	server, err := zeroconf.Register(
		info.DeviceName,
		config.SyncServiceName,
		"local.",
		port,
		txt,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	return &advertiser{server: server}, nil
}

func (a *advertiser) shutdown() {
	a.server.Shutdown()
}
