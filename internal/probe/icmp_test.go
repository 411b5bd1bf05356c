package probe_test

import (
	"encoding/binary"
	"runtime"
	"testing"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/hazz-dev/pinglog/internal/probe"
)

func marshal(t *testing.T, m icmp.Message) []byte {
	t.Helper()
	b, err := m.Marshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestEchoRequest_RoundTrip(t *testing.T) {
	payload := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b, err := probe.EchoRequest(42, 7, payload)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := icmp.ParseMessage(1, b)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != ipv4.ICMPTypeEcho {
		t.Fatalf("expected echo request, got %v", msg.Type)
	}
	echo := msg.Body.(*icmp.Echo)
	if echo.ID != 42 || echo.Seq != 7 || string(echo.Data) != string(payload) {
		t.Errorf("unexpected echo body %+v", echo)
	}
}

func TestMatchReply_Echo(t *testing.T) {
	b := marshal(t, icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: 42, Seq: 7, Data: []byte("aaaa")},
	})

	got, err := probe.MatchReply(b, 42, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got != probe.ReplyEcho {
		t.Errorf("expected ReplyEcho, got %v", got)
	}
}

func TestMatchReply_OtherSequence(t *testing.T) {
	b := marshal(t, icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: 42, Seq: 6, Data: []byte("aaaa")},
	})

	got, err := probe.MatchReply(b, 42, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got != probe.ReplyNone {
		t.Errorf("expected ReplyNone for stale sequence, got %v", got)
	}
}

func TestMatchReply_Unreachable(t *testing.T) {
	// Quoted original datagram: 20-byte IPv4 header + first 8 bytes of our echo.
	quoted := make([]byte, 28)
	quoted[0] = 0x45
	quoted[20] = byte(ipv4.ICMPTypeEcho)
	binary.BigEndian.PutUint16(quoted[24:26], 42)
	binary.BigEndian.PutUint16(quoted[26:28], 7)

	b := marshal(t, icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Code: 1,
		Body: &icmp.DstUnreach{Data: quoted},
	})

	got, err := probe.MatchReply(b, 42, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got != probe.ReplyUnreachable {
		t.Errorf("expected ReplyUnreachable, got %v", got)
	}

	got, _ = probe.MatchReply(b, 43, 7)
	if got != probe.ReplyNone {
		t.Errorf("expected ReplyNone for another process's echo, got %v", got)
	}
}

func TestMatchReply_Garbage(t *testing.T) {
	if _, err := probe.MatchReply([]byte{0x00}, 1, 1); err == nil {
		t.Error("expected parse error for truncated message")
	}
}

func TestDontFragmentEnforced(t *testing.T) {
	if want := runtime.GOOS == "linux"; probe.DontFragmentEnforced != want {
		t.Errorf("DontFragmentEnforced = %v on %s, want %v", probe.DontFragmentEnforced, runtime.GOOS, want)
	}
}
