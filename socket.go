/*
 * Copyright 2025 ringloop Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ringloop

import (
	"encoding/binary"
	"net"
	"syscall"

	"github.com/ringloop/ringloop/internal/mempool"
	"golang.org/x/sys/unix"
)

// Address is a raw socket address: a family tag plus the IP and port that
// sockaddr encodes into the bytes the kernel expects for that family.
// Unlike net.Addr, it can be encoded directly into the sockaddr buffer an
// IORING_OP_CONNECT submission points at.
type Address struct {
	family int
	ip     net.IP
	port   int
}

// TCPAddress builds an Address for connect/bind over TCP, accepting either
// an IPv4 or IPv6 literal.
func TCPAddress(ip net.IP, port int) Address {
	family := unix.AF_INET
	if ip.To4() == nil {
		family = unix.AF_INET6
	}
	return Address{family: family, ip: ip, port: port}
}

// sockaddr encodes the address as a raw struct sockaddr_in or
// sockaddr_in6, matching what the kernel expects behind an
// IORING_OP_CONNECT's addr pointer (the length travels in the SQE's off
// field).
func (a Address) sockaddr() []byte {
	if a.family == unix.AF_INET6 {
		buf := make([]byte, 28)
		binary.LittleEndian.PutUint16(buf[0:2], unix.AF_INET6)
		binary.BigEndian.PutUint16(buf[2:4], uint16(a.port))
		copy(buf[8:24], a.ip.To16())
		return buf
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint16(buf[0:2], unix.AF_INET)
	binary.BigEndian.PutUint16(buf[2:4], uint16(a.port))
	copy(buf[4:8], a.ip.To4())
	return buf
}

// Listener is a bound, listening TCP socket. Accept is the only operation
// that goes through the ring; Close is synchronous, matching the spec's
// treatment of setup/teardown as ordinary blocking calls outside the
// awaitable protocol.
type Listener struct {
	fd int32
}

// Listen creates, binds, and starts listening on addr with the given
// accept backlog. The underlying socket is non-blocking, as io_uring
// requires for IORING_OP_ACCEPT to behave as a true async accept rather
// than blocking the submitting thread.
func Listen(addr Address, backlog int) (*Listener, error) {
	fd, err := unix.Socket(addr.family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, WrapError("listen", ErrCodeRingSetup, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, WrapError("listen", ErrCodeRingSetup, err)
	}
	if err := bindRaw(fd, addr); err != nil {
		unix.Close(fd)
		return nil, WrapError("listen", ErrCodeRingSetup, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, WrapError("listen", ErrCodeRingSetup, err)
	}
	return &Listener{fd: int32(fd)}, nil
}

func bindRaw(fd int, addr Address) error {
	if addr.family == unix.AF_INET6 {
		var sa unix.SockaddrInet6
		copy(sa.Addr[:], addr.ip.To16())
		sa.Port = addr.port
		return unix.Bind(fd, &sa)
	}
	var sa unix.SockaddrInet4
	copy(sa.Addr[:], addr.ip.To4())
	sa.Port = addr.port
	return unix.Bind(fd, &sa)
}

// Fd returns the listener's raw file descriptor.
func (l *Listener) Fd() int32 { return l.fd }

// Accept suspends t until a connection arrives, returning the new
// connection or the negative errno the kernel reported.
func (l *Listener) Accept(t *T) (*Conn, int32) {
	res := Accept(t, l.fd)
	if res < 0 {
		return nil, res
	}
	return &Conn{fd: res}, res
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(int(l.fd))
}

// Conn is a connected TCP socket. Recv/Send/Read/Write/Close all operate
// through it; the first four go through the ring, Close is synchronous.
type Conn struct {
	fd int32
}

// DialConn creates a non-blocking socket and suspends t until connect to
// addr completes, returning the connection or the negative errno.
func DialConn(t *T, addr Address) (*Conn, int32) {
	fd, err := unix.Socket(addr.family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return nil, -int32(errno)
		}
		return nil, -1
	}
	c := &Conn{fd: int32(fd)}
	res := Connect(t, c.fd, addr)
	if res < 0 {
		unix.Close(fd)
		return nil, res
	}
	return c, res
}

// Fd returns the connection's raw file descriptor.
func (c *Conn) Fd() int32 { return c.fd }

// Recv suspends t until data is available or the connection errors.
func (c *Conn) Recv(t *T, buf []byte) int32 { return Recv(t, c.fd, buf) }

// Send suspends t until buf has been written to the connection.
func (c *Conn) Send(t *T, buf []byte) int32 { return Send(t, c.fd, buf) }

// Read suspends t until the connection yields bytes into buf.
func (c *Conn) Read(t *T, buf []byte) int32 { return Read(t, c.fd, buf) }

// Write suspends t until buf has been written to the connection.
func (c *Conn) Write(t *T, buf []byte) int32 { return Write(t, c.fd, buf) }

// Close closes the connection.
func (c *Conn) Close() error {
	return unix.Close(int(c.fd))
}

// RecvPooled recvs into a buffer drawn from the shared size-classed pool
// rather than one the caller provides, returning the (possibly short)
// filled slice and the raw result. Negative results come back as a nil
// buffer, already returned to the pool. Callers must pass the returned
// buffer to mempool.Free once done with it.
func (c *Conn) RecvPooled(t *T, size int) ([]byte, int32) {
	buf := mempool.Malloc(size)
	n := c.Recv(t, buf)
	if n < 0 {
		mempool.Free(buf)
		return nil, n
	}
	return buf[:n], n
}

// RecvDefault is RecvPooled sized for a caller with no better estimate of
// the next read, per mempool.DefaultRecvSize.
func (c *Conn) RecvDefault(t *T) ([]byte, int32) {
	return c.RecvPooled(t, mempool.DefaultRecvSize)
}
