//go:build linux || darwin

package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	gerrors "gzstream/internal/errors"
	"gzstream/internal/poll"
	"gzstream/util"
)

// connectStep bounds each writability wait so cancellation is noticed.
const connectStep = 100 * time.Millisecond

// TCPDialer connects IPv4 stream sockets, trying every resolved
// address in order until one connects.
type TCPDialer struct {
	Timeout time.Duration // per-address connect timeout
	Logger  *util.Logger
}

// Dial connects to host:port.  Resolution failures are returned as a
// "resolve" NetworkError; exhausting every address yields ErrConnect.
func (d *TCPDialer) Dial(ctx context.Context, host string, port int) (int, error) {
	ips, err := util.LookupIPv4(ctx, host)
	if err != nil {
		return -1, gerrors.Wrap("resolve", host, err)
	}

	var errs []error
	for _, ip := range ips {
		addr := util.FormatAddr(ip.String(), port)
		fd, err := d.connect(ctx, ip, port)
		if err == nil {
			return fd, nil
		}
		if d.Logger != nil {
			d.Logger.Verbose("connect %s: %v", addr, err)
		}
		errs = append(errs, err)
	}
	return -1, fmt.Errorf("%w to %s: %w", gerrors.ErrConnect,
		util.FormatAddr(host, port), gerrors.Join(errs...))
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

func (d *TCPDialer) connect(ctx context.Context, ip net.IP, port int) (int, error) {
	addr := util.FormatAddr(ip.String(), port)

	fd, err := newSocket()
	if err != nil {
		return -1, gerrors.Wrap("socket", addr, err)
	}

	err = unix.Connect(fd, sockaddr(ip, port))
	if err == unix.EINPROGRESS {
		err = d.awaitConnect(ctx, fd)
	}
	if err != nil {
		unix.Close(fd)
		return -1, gerrors.Wrap("connect", addr, err)
	}
	return fd, nil
}

// awaitConnect waits for a non-blocking connect to complete and
// returns its outcome from SO_ERROR.
func (d *TCPDialer) awaitConnect(ctx context.Context, fd int) error {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := time.Until(deadline)
		if step <= 0 {
			return gerrors.ErrTimeout
		}
		if step > connectStep {
			step = connectStep
		}
		err := poll.WaitWritable(fd, step)
		if gerrors.Is(err, gerrors.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return err
		}
		if soErr != 0 {
			return syscall.Errno(soErr)
		}
		return nil
	}
}

// ── Listener ─────────────────────────────────────────────────────────

// Listener is a bound, listening, non-blocking IPv4 socket.
type Listener struct {
	FD   int
	Addr string // bound address, with the kernel-chosen port if 0 was requested
}

// Listen resolves host (empty means the wildcard address) and tries
// each candidate until socket, bind and listen all succeed.
func Listen(ctx context.Context, host string, port, backlog int) (*Listener, error) {
	ips, err := util.LookupIPv4(ctx, host)
	if err != nil {
		return nil, gerrors.Wrap("resolve", host, err)
	}

	var errs []error
	for _, ip := range ips {
		ln, err := listenOne(ip, port, backlog)
		if err == nil {
			return ln, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w on %s: %w", gerrors.ErrListen,
		util.FormatAddr(host, port), gerrors.Join(errs...))
}

func listenOne(ip net.IP, port, backlog int) (*Listener, error) {
	addr := util.FormatAddr(ip.String(), port)

	fd, err := newSocket()
	if err != nil {
		return nil, gerrors.Wrap("socket", addr, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, gerrors.Wrap("setsockopt", addr, err)
	}
	if err := unix.Bind(fd, sockaddr(ip, port)); err != nil {
		unix.Close(fd)
		return nil, gerrors.Wrap("bind", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, gerrors.Wrap("listen", addr, err)
	}

	if sa, err := unix.Getsockname(fd); err == nil {
		addr = formatSockaddr(sa)
	}
	return &Listener{FD: fd, Addr: addr}, nil
}

// Accept takes one pending connection and returns its descriptor and
// peer address.  Whether the new descriptor inherits non-blocking
// mode is platform dependent; callers switch it with SetNonblock so
// that failure can be handled per connection.
func (l *Listener) Accept() (int, string, error) {
	fd, sa, err := unix.Accept(l.FD)
	if err != nil {
		return -1, "", gerrors.Wrap("accept", l.Addr, err)
	}
	unix.CloseOnExec(fd)
	return fd, formatSockaddr(sa), nil
}

// Close releases the listening descriptor.
func (l *Listener) Close() error {
	return unix.Close(l.FD)
}

// ── descriptor helpers ───────────────────────────────────────────────

// SetNonblock switches fd to non-blocking mode.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// CloseFD closes a raw descriptor.
func CloseFD(fd int) error {
	return unix.Close(fd)
}

// newSocket returns a non-blocking, close-on-exec IPv4 stream socket.
func newSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func sockaddr(ip net.IP, port int) *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())
	return sa
}

func formatSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return util.FormatAddr(net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return util.FormatAddr(net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
