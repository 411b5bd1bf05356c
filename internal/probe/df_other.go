//go:build !linux

package probe

import "syscall"

// DontFragmentEnforced reports whether the icmp prober can set DF on its socket.
const DontFragmentEnforced = false

// setDontFragment is a no-op where IP_MTU_DISCOVER is unavailable.
func setDontFragment(syscall.RawConn) error {
	return nil
}
