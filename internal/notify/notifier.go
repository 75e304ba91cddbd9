package notify

import (
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"
)

// Notifier sends ParameterChanged(id) datagrams on an ephemeral UDP socket
// with TTL=1. It never blocks the write path on failure: send errors are
// logged, never returned to the caller of Send.
type Notifier struct {
	conn    *net.UDPConn
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewNotifier opens an ephemeral UDP socket scoped to the host/local-link
// (TTL=1) and wraps outbound sends in a token-bucket limiter, guarding
// against a pathological caller hammering set in a tight loop.
func NewNotifier(logger *slog.Logger) (*Notifier, error) {
	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", MulticastGroup, MulticastPort))
	if err != nil {
		return nil, fmt.Errorf("notify: resolve multicast address: %w", err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("notify: dial multicast socket: %w", err)
	}

	if err := ipv4.NewConn(conn).SetMulticastTTL(1); err != nil {
		logger.Warn("notify: failed to set multicast TTL, continuing with OS default", "error", err)
	}

	return &Notifier{
		conn:    conn,
		logger:  logger.With("component", "notifier"),
		limiter: rate.NewLimiter(rate.Limit(200), 50),
	}, nil
}

// Send publishes a ParameterChanged(id) notification. Failures are logged
// and swallowed: notification send failures are logged but never fail the
// write.
func (n *Notifier) Send(id uint32) {
	if !n.limiter.Allow() {
		n.logger.Warn("notify: send rate limited, dropping notification", "id", id)
		return
	}

	payload := encodeNotification(id)
	if _, err := n.conn.Write(payload); err != nil {
		n.logger.Warn("notify: send failed", "id", id, "error", err)
	}
}

// Close releases the outbound socket.
func (n *Notifier) Close() error {
	return n.conn.Close()
}
