package dispatcher

import (
	"net"
	"testing"
	"time"

	"github.com/tjper/yashd/internal/yashd/cgroup"
	"github.com/tjper/yashd/internal/yashd/launcher"
	"github.com/tjper/yashd/internal/yashd/registry"
	"github.com/tjper/yashd/internal/yashd/supervisor"
)

func TestListenRejectsOutOfRangePort(t *testing.T) {
	if _, err := Listen(80); err != ErrPortOutOfRange {
		t.Fatalf("expected ErrPortOutOfRange, got %v", err)
	}
	if _, err := Listen(70000); err != ErrPortOutOfRange {
		t.Fatalf("expected ErrPortOutOfRange, got %v", err)
	}
}

func TestListenBindsInRangePort(t *testing.T) {
	lis, err := Listen(DefaultPort + 1000)
	if err != nil {
		t.Skipf("could not bind test port, skipping: %s", err)
	}
	defer lis.Close()

	if lis.Addr() == nil {
		t.Fatal("expected a bound address")
	}
}

func TestDispatchAcceptsAndRegistersConnections(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	defer lis.Close()

	reg := registry.New()
	l := launcher.New("", nil, cgroup.Limits{})
	s := supervisor.New(nil)
	d := New(lis, reg, l, s)

	go d.Run()

	conn, err := net.Dial("tcp", lis.Addr().String())
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reg.Count() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected a registered servant after dialing")
}
