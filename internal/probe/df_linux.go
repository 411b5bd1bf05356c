package probe

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// DontFragmentEnforced reports whether the icmp prober can set DF on its socket.
const DontFragmentEnforced = true

func setDontFragment(c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
	})
	if err != nil {
		return err
	}
	return serr
}
