package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Handler is invoked for every validly decoded notification, with the
// decoded parameter id. The engine wires this to cache invalidation plus
// callback dispatch.
type Handler func(id uint32)

// Receiver joins the multicast group and decodes notifications on a
// dedicated goroutine. Unlike original_source/econfmanager's
// event_receiver.rs (whose decode step is a stub that always reports a
// fixed id), this receiver performs the real decode-and-validate step.
type Receiver struct {
	conn    *net.UDPConn
	pconn   *ipv4.PacketConn
	logger  *slog.Logger
	handler Handler
	numIDs  uint32

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReceiver joins the multicast group on MulticastPort, disabling
// multicast loopback (a process never consumes its own notifications — for
// those, the write path already invalidated and dispatched in-process).
// numIDs bounds valid ids (the id must be < PARAMETERS_NUM).
func NewReceiver(logger *slog.Logger, numIDs uint32, handler Handler) (*Receiver, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", MulticastPort))
	if err != nil {
		return nil, fmt.Errorf("notify: listen failed: %w", err)
	}
	conn := pc.(*net.UDPConn)

	pconn := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(MulticastGroup)}
	if err := pconn.JoinGroup(nil, group); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: join multicast group failed: %w", err)
	}
	if err := pconn.SetMulticastLoopback(false); err != nil {
		logger.Warn("notify: failed to disable multicast loopback", "error", err)
	}

	return &Receiver{
		conn:    conn,
		pconn:   pconn,
		logger:  logger.With("component", "event_receiver"),
		handler: handler,
		numIDs:  numIDs,
	}, nil
}

// Start launches the receive loop on a dedicated goroutine. It terminates
// when Close is called.
func (r *Receiver) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(ctx)
}

func (r *Receiver) loop(ctx context.Context) {
	defer r.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				r.logger.Warn("notify: recv failed", "error", err)
				continue
			}
		}

		id, err := decodeNotification(buf[:n])
		if err != nil {
			r.logger.Warn("notify: malformed packet discarded", "error", err)
			continue
		}
		if id >= r.numIDs {
			r.logger.Warn("notify: out-of-range id discarded", "id", id)
			continue
		}
		r.handler(id)
	}
}

// Close stops the receive loop and releases the multicast socket.
func (r *Receiver) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	err := r.conn.Close()
	r.wg.Wait()
	return err
}
