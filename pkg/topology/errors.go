package topology

import (
	"fmt"

	"github.com/meridian-sdn/meridian/pkg/merrors"
)

func errUnknownSwitch(dpid uint64) error {
	return &merrors.UnknownSwitchError{DPID: dpid}
}

func errUnknownPort(ep Endpoint) error {
	return fmt.Errorf("%w: dpid=%d port=%d", merrors.ErrUnknownSwitch, ep.DPID, ep.PortNo)
}
