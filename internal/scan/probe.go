package scan

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// LoopbackAddr is the default address of the local-host probe.
const LoopbackAddr = "127.0.0.1"

// DefaultProbeTimeout is the per-port connect timeout.
const DefaultProbeTimeout = 500 * time.Millisecond

// ProbeHost attempts a TCP connect to every port concurrently, each bounded
// by timeout, and returns the ports that accepted a connection in the order
// they were listed. Refused, unreachable and timed-out ports are closed.
// The only error is ctx's, when it ends before the probe settles.
func ProbeHost(ctx context.Context, host string, ports []ProbePort, timeout time.Duration) ([]model.PortInfo, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	open := make([]bool, len(ports))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range ports {
		i, p := i, p
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			var d net.Dialer
			conn, err := d.DialContext(dctx, "tcp", net.JoinHostPort(host, strconv.Itoa(p.Port)))
			if err == nil {
				open[i] = true
				_ = conn.Close()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.PortInfo, 0, len(ports))
	for i, p := range ports {
		if open[i] {
			out = append(out, model.PortInfo{
				Port:     p.Port,
				Service:  p.Service,
				State:    model.PortStateOpen,
				Protocol: "tcp",
			})
		}
	}
	return out, nil
}

// Resolver maps an address to host names.
type Resolver func(ctx context.Context, addr string) ([]string, error)

// reverseName returns the first name resolve reports for addr, or fallback.
func reverseName(ctx context.Context, resolve Resolver, addr, fallback string) string {
	if resolve == nil {
		return fallback
	}
	names, err := resolve(ctx, addr)
	if err != nil || len(names) == 0 {
		return fallback
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" {
		return fallback
	}
	return name
}

func portList(ports []model.PortInfo) string {
	if len(ports) == 0 {
		return "none"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p.Port)
	}
	return strings.Join(parts, ", ")
}
