package probe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	defaultPacketTimeout = time.Second
	defaultPingInterval  = 200 * time.Millisecond
)

var errNoIPv4 = errors.New("no IPv4 address")

// ICMPPinger sends echo requests over an unprivileged datagram socket and
// falls back to a raw socket when the kernel does not allow the former.
type ICMPPinger struct {
	PacketTimeout time.Duration
	Interval      time.Duration
}

func NewICMPPinger() *ICMPPinger {
	return &ICMPPinger{PacketTimeout: defaultPacketTimeout, Interval: defaultPingInterval}
}

func (p *ICMPPinger) Ping(ctx context.Context, host string, count int) (PingStats, error) {
	var stats PingStats

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return stats, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return stats, fmt.Errorf("resolve %s: %w", host, errNoIPv4)
	}
	dst := ips[0]

	conn, privileged, err := listenICMP()
	if err != nil {
		return stats, err
	}
	defer conn.Close()
	// closing the socket unblocks a pending read as soon as ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	id := rand.IntN(0xffff)
	for seq := 0; seq < count; seq++ {
		if seq > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(p.Interval):
			}
		}
		rtt, err := p.echo(ctx, conn, dst, privileged, id, seq)
		stats.Sent++
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			continue
		}
		stats.Received++
		stats.RTTs = append(stats.RTTs, rtt)
	}
	return stats, nil
}

func (p *ICMPPinger) echo(ctx context.Context, conn *icmp.PacketConn, ip net.IP, privileged bool, id, seq int) (time.Duration, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("pingwatch")},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}
	var dst net.Addr = &net.UDPAddr{IP: ip}
	if privileged {
		dst = &net.IPAddr{IP: ip}
	}

	start := time.Now()
	if _, err := conn.WriteTo(b, dst); err != nil {
		return 0, err
	}
	deadline := start.Add(p.PacketTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		if !sameHost(peer, ip) {
			continue
		}
		rm, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), buf[:n])
		if err != nil || rm.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// the kernel rewrites the id on datagram sockets
		if privileged && echo.ID != id {
			continue
		}
		return time.Since(start), nil
	}
}

func listenICMP() (*icmp.PacketConn, bool, error) {
	if c, err := icmp.ListenPacket("udp4", "0.0.0.0"); err == nil {
		return c, false, nil
	}
	c, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, false, fmt.Errorf("open icmp socket: %w", err)
	}
	return c, true, nil
}

func sameHost(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	}
	return false
}
