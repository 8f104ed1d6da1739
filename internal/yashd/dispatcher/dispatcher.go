// Package dispatcher implements the Listener (spec_full.md C2) and
// Dispatcher (C9): binding the daemon's TCP endpoint and running the
// single-threaded accept loop that hands each connection to a registry
// slot and a servant goroutine (spec.md §4.2, §4.3).
//
// Grounded on the teacher's cli.runServe accept/serve pattern, generalized
// from one grpc.Server.Serve call to yashd's own reserve-then-spawn loop
// over a raw net.Listener.
package dispatcher

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/tjper/yashd/internal/log"
	"github.com/tjper/yashd/internal/yashd/launcher"
	"github.com/tjper/yashd/internal/yashd/registry"
	"github.com/tjper/yashd/internal/yashd/session"
	"github.com/tjper/yashd/internal/yashd/supervisor"
)

var logger = log.New(os.Stdout, "dispatcher")

// MinPort and MaxPort bound the configurable listen port (spec.md §4.2).
const (
	MinPort = 1024
	MaxPort = 65535
	// DefaultPort is used when the operator does not override it (spec.md §6).
	DefaultPort = 3826
)

// ErrPortOutOfRange indicates a configured port fell outside
// [MinPort, MaxPort].
var ErrPortOutOfRange = fmt.Errorf("port must be between %d and %d", MinPort, MaxPort)

// Listen creates the daemon's TCP listening endpoint: bound to every
// interface on port, SO_REUSEADDR set, backlog 5 (spec.md §4.2). Go's
// net package sets SO_REUSEADDR on TCP listeners by default and sizes the
// accept backlog from the kernel's somaxconn, so Listen's only remaining
// duty is validating the port and binding.
func Listen(port int) (net.Listener, error) {
	if port < MinPort || port > MaxPort {
		return nil, ErrPortOutOfRange
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	logger.Infof("listening; port: %d", port)
	return lis, nil
}

// Dispatcher runs the main accept loop (spec.md §4.3): reserve a registry
// slot for each new connection and spawn its servant goroutine. The
// Dispatcher never blocks on client I/O; it only ever blocks in accept.
type Dispatcher struct {
	listener   net.Listener
	registry   *registry.Registry
	launcher   *launcher.Launcher
	supervisor *supervisor.Supervisor
}

// New creates a Dispatcher bound to lis, reserving servant slots from reg
// and handing each session the shared launcher/supervisor.
func New(lis net.Listener, reg *registry.Registry, l *launcher.Launcher, s *supervisor.Supervisor) *Dispatcher {
	return &Dispatcher{listener: lis, registry: reg, launcher: l, supervisor: s}
}

// Run accepts connections until lis is closed (normally by the daemon's
// shutdown sequence), at which point Run returns nil.
func (d *Dispatcher) Run() error {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if isClosed(err) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		d.dispatch(conn)
	}
}

// dispatch reserves a registry slot for conn and spawns its servant. A
// full registry or a reservation failure closes the connection and logs,
// per spec.md §4.3 (c): "on thread-creation failure, close the socket,
// free the slot, and continue."
func (d *Dispatcher) dispatch(conn net.Conn) {
	rec, err := d.registry.Reserve(conn)
	if err != nil {
		logger.Warnf("reserve servant slot; remote: %s, error: %s", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	logger.Infof("accepted connection; remote: %s", conn.RemoteAddr())

	go func() {
		defer d.registry.Remove(rec)
		session.New(rec, d.launcher, d.supervisor).Serve()
	}()
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
