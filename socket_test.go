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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTCPAddressPicksFamilyFromTheLiteral(t *testing.T) {
	v4 := TCPAddress(net.ParseIP("127.0.0.1"), 8080)
	assert.Equal(t, unix.AF_INET, v4.family)

	v6 := TCPAddress(net.ParseIP("::1"), 8080)
	assert.Equal(t, unix.AF_INET6, v6.family)
}

func TestSockaddrEncodesIPv4AsRawSockaddrIn(t *testing.T) {
	addr := TCPAddress(net.ParseIP("192.168.1.2"), 4242)
	buf := addr.sockaddr()

	require := assert.New(t)
	require.Len(buf, 16)
	require.Equal(uint16(unix.AF_INET), binary.LittleEndian.Uint16(buf[0:2]))
	require.Equal(uint16(4242), binary.BigEndian.Uint16(buf[2:4]))
	require.Equal([]byte{192, 168, 1, 2}, buf[4:8])
}

func TestSockaddrEncodesIPv6AsRawSockaddrIn6(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	addr := TCPAddress(ip, 9000)
	buf := addr.sockaddr()

	require := assert.New(t)
	require.Len(buf, 28)
	require.Equal(uint16(unix.AF_INET6), binary.LittleEndian.Uint16(buf[0:2]))
	require.Equal(uint16(9000), binary.BigEndian.Uint16(buf[2:4]))
	require.Equal([]byte(ip.To16()), buf[8:24])
}

func TestListenBindsAnEphemeralPortAndReportsItViaGetsockname(t *testing.T) {
	addr := TCPAddress(net.ParseIP("127.0.0.1"), 0)
	ln, err := Listen(addr, 16)
	if err != nil {
		t.Skipf("listen unavailable in this sandbox: %v", err)
	}
	defer ln.Close()

	sa, err := unix.Getsockname(int(ln.Fd()))
	if err != nil {
		t.Skipf("getsockname unavailable: %v", err)
	}
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Skip("unexpected sockaddr family from ephemeral bind")
	}
	assert.NotZero(t, v4.Port)
}

// recvFull reads exactly len(buf) bytes, looping over short reads — a TCP
// byte stream gives no guarantee a single Recv returns the whole payload
// even over loopback.
func recvFull(t *T, conn *Conn, buf []byte) int32 {
	total := 0
	for total < len(buf) {
		n := conn.Recv(t, buf[total:])
		if n <= 0 {
			return n
		}
		total += int(n)
	}
	return int32(total)
}

func sendFull(t *T, conn *Conn, buf []byte) int32 {
	total := 0
	for total < len(buf) {
		n := conn.Send(t, buf[total:])
		if n <= 0 {
			return n
		}
		total += int(n)
	}
	return int32(total)
}

// TestEchoLoopbackSendRecvRoundTrips drives spec.md §8 scenario 1 end to
// end over a real kernel io_uring: bind and listen, accept a loopback
// connection, send 256 bytes, echo them back, and compare on the sending
// side — then stop and join the owning context cleanly.
func TestEchoLoopbackSendRecvRoundTrips(t *testing.T) {
	addr := TCPAddress(net.ParseIP("127.0.0.1"), 0)
	ln, err := Listen(addr, 16)
	if err != nil {
		t.Skipf("listen unavailable in this sandbox: %v", err)
	}
	defer ln.Close()

	sa, err := unix.Getsockname(int(ln.Fd()))
	if err != nil {
		t.Skipf("getsockname unavailable: %v", err)
	}
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Skip("unexpected sockaddr family from ephemeral bind")
	}
	serverAddr := TCPAddress(net.IP(v4.Addr[:]), v4.Port)

	ctx, err := NewContext(DefaultConfig())
	if err != nil {
		t.Skipf("real io_uring unavailable in this sandbox: %v", err)
	}
	require.NoError(t, ctx.Start())
	defer func() {
		ctx.Stop()
		ctx.Join()
		ctx.Close()
	}()

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	serverErrCh := make(chan int32, 1)
	Spawn(ctx, func(tk *T) int {
		conn, res := ln.Accept(tk)
		if res < 0 {
			serverErrCh <- res
			return 0
		}
		defer conn.Close()

		buf := make([]byte, len(payload))
		if n := recvFull(tk, conn, buf); n < 0 {
			serverErrCh <- n
			return 0
		}
		serverErrCh <- sendFull(tk, conn, buf)
		return 0
	})

	clientResultCh := make(chan []byte, 1)
	Spawn(ctx, func(tk *T) int {
		conn, res := DialConn(tk, serverAddr)
		if res < 0 {
			clientResultCh <- nil
			return 0
		}
		defer conn.Close()

		if sendFull(tk, conn, payload) < 0 {
			clientResultCh <- nil
			return 0
		}
		buf := make([]byte, len(payload))
		if recvFull(tk, conn, buf) < 0 {
			clientResultCh <- nil
			return 0
		}
		clientResultCh <- buf
		return 0
	})

	select {
	case got := <-clientResultCh:
		require.NotNil(t, got, "client never completed the echo round trip")
		assert.Equal(t, payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("echo round trip never completed")
	}

	select {
	case serverRes := <-serverErrCh:
		assert.GreaterOrEqual(t, serverRes, int32(0))
	case <-time.After(5 * time.Second):
		t.Fatal("server side of the echo never completed")
	}
}
