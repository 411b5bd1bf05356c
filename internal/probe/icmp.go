package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// protocolICMP is the IANA protocol number for ICMP over IPv4.
const protocolICMP = 1

// icmpProber sends echo requests on a raw ICMP socket. It needs CAP_NET_RAW
// (or root) on Linux.
type icmpProber struct {
	id  int
	seq atomic.Uint32
}

func newICMPProber() *icmpProber {
	return &icmpProber{id: os.Getpid() & 0xffff}
}

func (p *icmpProber) Probe(ctx context.Context, req Request) (time.Duration, error) {
	dst, err := resolveIPv4(ctx, req.Host)
	if err != nil {
		return 0, err
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			if !req.DontFragment {
				return nil
			}
			return setDontFragment(c)
		},
	}
	conn, err := lc.ListenPacket(ctx, "ip4:icmp", "0.0.0.0")
	if err != nil {
		return 0, fmt.Errorf("opening icmp socket: %w", err)
	}
	defer conn.Close()

	seq := int(p.seq.Add(1) & 0xffff)
	wb, err := EchoRequest(p.id, seq, req.Payload)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(req.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("setting deadline: %w", err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, &net.IPAddr{IP: dst}); err != nil {
		return 0, fmt.Errorf("sending echo to %s: %w", dst, err)
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return 0, ErrTimeout
			}
			return 0, fmt.Errorf("reading reply: %w", err)
		}
		rtt := time.Since(start)

		match, err := MatchReply(rb[:n], p.id, seq)
		if err != nil || match == ReplyNone {
			continue
		}
		if match == ReplyUnreachable {
			return 0, ErrUnreachable
		}
		if ip, ok := peer.(*net.IPAddr); ok && !ip.IP.Equal(dst) {
			continue
		}
		return rtt, nil
	}
}

func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address for %s", host)
}

// EchoRequest marshals an ICMPv4 echo request.
func EchoRequest(id, seq int, payload []byte) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("marshaling echo request: %w", err)
	}
	return b, nil
}

// Reply classifies an incoming ICMP message against an outstanding echo.
type Reply int

const (
	ReplyNone Reply = iota
	ReplyEcho
	ReplyUnreachable
)

// MatchReply parses an ICMPv4 message and reports whether it answers the
// echo identified by id and seq.
func MatchReply(b []byte, id, seq int) (Reply, error) {
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil {
		return ReplyNone, fmt.Errorf("parsing icmp message: %w", err)
	}

	switch msg.Type {
	case ipv4.ICMPTypeEchoReply:
		echo, ok := msg.Body.(*icmp.Echo)
		if ok && echo.ID == id && echo.Seq == seq {
			return ReplyEcho, nil
		}
	case ipv4.ICMPTypeDestinationUnreachable:
		du, ok := msg.Body.(*icmp.DstUnreach)
		if ok && quotesEcho(du.Data, id, seq) {
			return ReplyUnreachable, nil
		}
	}
	return ReplyNone, nil
}

// quotesEcho reports whether data (original IPv4 header plus the first 8
// bytes of its payload) quotes our echo request.
func quotesEcho(data []byte, id, seq int) bool {
	if len(data) < ipv4.HeaderLen {
		return false
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < ipv4.HeaderLen || len(data) < ihl+8 {
		return false
	}
	inner := data[ihl:]
	if inner[0] != byte(ipv4.ICMPTypeEcho) {
		return false
	}
	return int(binary.BigEndian.Uint16(inner[4:6])) == id &&
		int(binary.BigEndian.Uint16(inner[6:8])) == seq
}
