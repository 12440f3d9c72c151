package router

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SutekhVRC/VOR/config"
	"github.com/SutekhVRC/VOR/status"
)

func listenerPort(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	conn, err := net.ListenUDP("udp4", addr)
	require.NoError(t, err)
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func baseRouterSpec(t *testing.T) config.RouterSpec {
	t.Helper()
	return config.RouterSpec{
		BindHost:      "127.0.0.1",
		BindPort:      "0", // overwritten per test with a port from listenerPort
		VORBufferSize: "16",
		AsyncMode:     true,
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).AddrPort().String()
}

func drainUntilStatus(t *testing.T, ch <-chan status.Update, index int, kind status.Kind, timeout time.Duration) status.Update {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case u := <-ch:
			if u.Index == index && u.Status.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for index=%d kind=%v", index, kind)
		}
	}
}

func sendOSC(t *testing.T, toAddr string, addr string) {
	t.Helper()
	msg := osc.NewMessage(addr)
	payload, err := msg.ToBytes()
	require.NoError(t, err)
	raddr, err := net.ResolveUDPAddr("udp4", toAddr)
	require.NoError(t, err)
	conn, err := net.DialUDP("udp4", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestRouterFansOutOneMessageToTwoRoutes(t *testing.T) {
	dstA, portA := listenerPort(t)
	defer dstA.Close()
	dstB, portB := listenerPort(t)
	defer dstB.Close()

	rs := baseRouterSpec(t)
	listen, listenPort := listenerPort(t)
	listen.Close() // free the port, router.Start rebinds it
	rs.BindPort = itoaPort(listenPort)

	routes := []config.RouteSpec{
		{AppName: "A", AppHost: "127.0.0.1", AppPort: itoaPort(portA), Index: 0, Enabled: true},
		{AppName: "B", AppHost: "127.0.0.1", AppPort: itoaPort(portB), Index: 1, Enabled: true},
	}

	ctrl, statusCh, err := Start(rs, routes, config.FilterSpec{}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, ctrl)

	drainUntilStatus(t, statusCh, 0, status.Running, 2*time.Second)
	drainUntilStatus(t, statusCh, 1, status.Running, 2*time.Second)

	sendOSC(t, rs.ListenAddr(), "/fanout/test")

	require.NoError(t, dstA.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, dstB.SetReadDeadline(time.Now().Add(2*time.Second)))
	bufA := make([]byte, 512)
	nA, _, err := dstA.ReadFromUDP(bufA)
	require.NoError(t, err)
	bufB := make([]byte, 512)
	nB, _, err := dstB.ReadFromUDP(bufB)
	require.NoError(t, err)
	require.Equal(t, bufA[:nA], bufB[:nB])

	ctrl.ShutdownAll()
	waitWithTimeout(t, ctrl, 2*time.Second)
}

func TestRouterWhitelistDropsUnlistedAddress(t *testing.T) {
	dst, port := listenerPort(t)
	defer dst.Close()

	rs := baseRouterSpec(t)
	listen, listenPort := listenerPort(t)
	listen.Close()
	rs.BindPort = itoaPort(listenPort)

	fs := config.FilterSpec{
		Enabled:          true,
		WhitelistEnabled: true,
		Whitelist:        []config.AddressEntry{{Address: "/allowed"}},
	}
	routes := []config.RouteSpec{
		{AppName: "A", AppHost: "127.0.0.1", AppPort: itoaPort(port), Index: 0, Enabled: true},
	}

	ctrl, statusCh, err := Start(rs, routes, fs, nil, zerolog.Nop())
	require.NoError(t, err)
	drainUntilStatus(t, statusCh, 0, status.Running, 2*time.Second)

	sendOSC(t, rs.ListenAddr(), "/not-allowed")
	sendOSC(t, rs.ListenAddr(), "/allowed")

	require.NoError(t, dst.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, _, err := dst.ReadFromUDP(buf)
	require.NoError(t, err)
	p, err := decodeAddress(buf[:n])
	require.NoError(t, err)
	require.Equal(t, "/allowed", p)

	ctrl.ShutdownAll()
	waitWithTimeout(t, ctrl, 2*time.Second)
}

func TestRouterBlacklistDropsListedAddress(t *testing.T) {
	dst, port := listenerPort(t)
	defer dst.Close()

	rs := baseRouterSpec(t)
	listen, listenPort := listenerPort(t)
	listen.Close()
	rs.BindPort = itoaPort(listenPort)

	fs := config.FilterSpec{
		Enabled:          true,
		BlacklistEnabled: true,
		Blacklist:        []config.AddressEntry{{Address: "/blocked"}},
	}
	routes := []config.RouteSpec{
		{AppName: "A", AppHost: "127.0.0.1", AppPort: itoaPort(port), Index: 0, Enabled: true},
	}

	ctrl, statusCh, err := Start(rs, routes, fs, nil, zerolog.Nop())
	require.NoError(t, err)
	drainUntilStatus(t, statusCh, 0, status.Running, 2*time.Second)

	sendOSC(t, rs.ListenAddr(), "/blocked")
	sendOSC(t, rs.ListenAddr(), "/passes")

	require.NoError(t, dst.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, _, err := dst.ReadFromUDP(buf)
	require.NoError(t, err)
	p, err := decodeAddress(buf[:n])
	require.NoError(t, err)
	require.Equal(t, "/passes", p)

	ctrl.ShutdownAll()
	waitWithTimeout(t, ctrl, 2*time.Second)
}

func TestRouterMalformedPacketDroppedWhenConfigured(t *testing.T) {
	dst, port := listenerPort(t)
	defer dst.Close()

	rs := baseRouterSpec(t)
	listen, listenPort := listenerPort(t)
	listen.Close()
	rs.BindPort = itoaPort(listenPort)

	fs := config.FilterSpec{Enabled: true, FilterBadPackets: true}
	routes := []config.RouteSpec{
		{AppName: "A", AppHost: "127.0.0.1", AppPort: itoaPort(port), Index: 0, Enabled: true},
	}

	ctrl, statusCh, err := Start(rs, routes, fs, nil, zerolog.Nop())
	require.NoError(t, err)
	drainUntilStatus(t, statusCh, 0, status.Running, 2*time.Second)

	raddr, err := net.ResolveUDPAddr("udp4", rs.ListenAddr())
	require.NoError(t, err)
	sendConn, err := net.DialUDP("udp4", nil, raddr)
	require.NoError(t, err)
	_, err = sendConn.Write([]byte("not an osc packet"))
	require.NoError(t, err)
	sendConn.Close()

	sendOSC(t, rs.ListenAddr(), "/still/works")

	require.NoError(t, dst.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, _, err := dst.ReadFromUDP(buf)
	require.NoError(t, err)
	p, err := decodeAddress(buf[:n])
	require.NoError(t, err)
	require.Equal(t, "/still/works", p)

	ctrl.ShutdownAll()
	waitWithTimeout(t, ctrl, 2*time.Second)
}

func TestRouterGracefulShutdownWithinTwoSeconds(t *testing.T) {
	dst, port := listenerPort(t)
	defer dst.Close()

	rs := baseRouterSpec(t)
	listen, listenPort := listenerPort(t)
	listen.Close()
	rs.BindPort = itoaPort(listenPort)

	routes := []config.RouteSpec{
		{AppName: "A", AppHost: "127.0.0.1", AppPort: itoaPort(port), Index: 0, Enabled: true},
	}

	ctrl, statusCh, err := Start(rs, routes, config.FilterSpec{}, nil, zerolog.Nop())
	require.NoError(t, err)
	drainUntilStatus(t, statusCh, 0, status.Running, 2*time.Second)

	start := time.Now()
	ctrl.ShutdownAll()
	waitWithTimeout(t, ctrl, 2*time.Second)
	require.Less(t, time.Since(start), 2*time.Second)

	drainUntilStatus(t, statusCh, 0, status.Stopped, 1*time.Second)
}

func TestRouterBindConflictReportsEngineError(t *testing.T) {
	taken, takenPort := listenerPort(t)
	defer taken.Close()

	rs := baseRouterSpec(t)
	rs.BindPort = itoaPort(takenPort)

	ctrl, statusCh, err := Start(rs, nil, config.FilterSpec{}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, ctrl)

	u := drainUntilStatus(t, statusCh, status.EngineIndex, status.Error, 2*time.Second)
	require.Equal(t, status.ErrBindListener, u.Status.ErrID)
}

func TestRouterDisabledRouteNeverStarted(t *testing.T) {
	rs := baseRouterSpec(t)
	listen, listenPort := listenerPort(t)
	listen.Close()
	rs.BindPort = itoaPort(listenPort)

	routes := []config.RouteSpec{
		{AppName: "Off", AppHost: "127.0.0.1", AppPort: freePortNumber(t), Index: 0, Enabled: false},
	}

	ctrl, statusCh, err := Start(rs, routes, config.FilterSpec{}, nil, zerolog.Nop())
	require.NoError(t, err)
	u := drainUntilStatus(t, statusCh, 0, status.Disabled, 2*time.Second)
	require.Equal(t, status.Disabled, u.Status.Kind)

	ctrl.ShutdownAll()
	waitWithTimeout(t, ctrl, 2*time.Second)
}

func waitWithTimeout(t *testing.T, ctrl *Control, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("router did not shut down in time")
	}
}

func decodeAddress(buf []byte) (string, error) {
	p, err := osc.ParsePacket(string(buf))
	if err != nil {
		return "", err
	}
	if m, ok := p.(*osc.Message); ok {
		return m.Address, nil
	}
	return "", nil
}

func itoaPort(n int) string {
	return strconv.Itoa(n)
}

func freePortNumber(t *testing.T) string {
	t.Helper()
	conn, port := listenerPort(t)
	conn.Close()
	return itoaPort(port)
}
