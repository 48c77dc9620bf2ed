// Package agent collects local host telemetry into a heartbeat payload.
package agent

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/risk"
	"github.com/jmerrifield20/riskengine/internal/scan"
)

// Sources are the telemetry readers a Collector draws on.
type Sources struct {
	Host        func(ctx context.Context) (*host.InfoStat, error)
	Interfaces  func(ctx context.Context) (gnet.InterfaceStatList, error)
	IOCounters  func(ctx context.Context) ([]gnet.IOCountersStat, error)
	Connections func(ctx context.Context) ([]gnet.ConnectionStat, error)
	Load        func(ctx context.Context) (*load.AvgStat, error)
	Pids        func(ctx context.Context) ([]int32, error)
}

// SystemSources reads the running host through gopsutil.
func SystemSources() Sources {
	return Sources{
		Host:       host.InfoWithContext,
		Interfaces: gnet.InterfacesWithContext,
		IOCounters: func(ctx context.Context) ([]gnet.IOCountersStat, error) {
			return gnet.IOCountersWithContext(ctx, false)
		},
		Connections: func(ctx context.Context) ([]gnet.ConnectionStat, error) {
			return gnet.ConnectionsWithContext(ctx, "tcp")
		},
		Load: load.AvgWithContext,
		Pids: process.PidsWithContext,
	}
}

// Collector builds heartbeat payloads from host telemetry.
type Collector struct {
	src     Sources
	version string
	now     func() time.Time
	logger  *zap.Logger
}

// NewCollector creates a Collector reporting the given agent version.
func NewCollector(src Sources, version string, logger *zap.Logger) *Collector {
	return &Collector{src: src, version: version, now: time.Now, logger: logger}
}

// SetClock replaces the time source; used by tests.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Collect reads the local host with the system sources.
func Collect(ctx context.Context, version string, logger *zap.Logger) (*model.HeartbeatPayload, error) {
	return NewCollector(SystemSources(), version, logger).Collect(ctx)
}

// Collect returns a payload for the local host. Only host identity is
// required; other readers that fail leave their dimensions absent.
func (c *Collector) Collect(ctx context.Context) (*model.HeartbeatPayload, error) {
	info, err := c.src.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}
	now := c.now()

	p := &model.HeartbeatPayload{
		Hostname:     info.Hostname,
		OSName:       osName(info),
		OSVersion:    info.PlatformVersion,
		OSArch:       info.KernelArch,
		AgentVersion: c.version,
		AssetType:    model.AssetTypeEndpoint,
	}
	uptime := int64(info.Uptime)
	p.UptimeSeconds = &uptime

	vc := &model.VectorContext{CollectedAt: &now, CollectionVersion: c.version}
	vc.D4Temporal = temporal(info, now)

	if ifaces, err := c.src.Interfaces(ctx); err != nil {
		c.warn("interfaces", err)
	} else {
		primary, count := primaryInterface(ifaces)
		if primary != nil {
			p.IPAddress = primary.ip.String()
			p.MACAddress = primary.mac
		}
		vc.D1Network = network(primary, count)
	}

	var conns []gnet.ConnectionStat
	if conns, err = c.src.Connections(ctx); err != nil {
		c.warn("connections", err)
	} else {
		p.OpenPorts = listeningPorts(conns)
		vc.D6Vulnerability = exposedPorts(p.OpenPorts)
		active, established := connectionCounts(conns)
		if vc.D1Network != nil {
			vc.D1Network.ActiveConnections = established
		}
		vc.D10Traffic = &model.TrafficDimension{
			ActiveTCPConnections:   active,
			EstablishedConnections: established,
			ListeningPorts:         len(p.OpenPorts),
		}
	}

	if io, err := c.src.IOCounters(ctx); err != nil {
		c.warn("io counters", err)
	} else if len(io) > 0 {
		if vc.D10Traffic == nil {
			vc.D10Traffic = &model.TrafficDimension{}
		}
		vc.D10Traffic.BytesSentMB = megabytes(io[0].BytesSent)
		vc.D10Traffic.BytesRecvMB = megabytes(io[0].BytesRecv)
	}

	behavior := &model.BehaviorDimension{}
	haveBehavior := false
	if pids, err := c.src.Pids(ctx); err != nil {
		c.warn("processes", err)
	} else {
		behavior.ProcessCount = len(pids)
		haveBehavior = true
	}
	if avg, err := c.src.Load(ctx); err != nil {
		c.warn("load average", err)
	} else {
		behavior.LoadAverage = avg.Load1
		haveBehavior = true
	}
	if haveBehavior {
		vc.D3Behavior = behavior
	}

	p.VectorContext = vc
	return p, nil
}

func (c *Collector) warn(what string, err error) {
	c.logger.Warn("agent: telemetry unavailable", zap.String("source", what), zap.Error(err))
}

func osName(info *host.InfoStat) string {
	name := info.Platform
	if name == "" {
		name = info.OS
	}
	if name == "" {
		return "Unknown"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// IsBusinessHours reports whether t falls within Monday to Friday, 08:00 to 18:00.
func IsBusinessHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= 8 && t.Hour() < 18
}

func temporal(info *host.InfoStat, now time.Time) *model.TemporalDimension {
	tz, _ := now.Zone()
	business := IsBusinessHours(now)
	d := &model.TemporalDimension{
		Timezone:        &tz,
		UptimeDays:      float64(info.Uptime) / 86400,
		CollectionHour:  now.Hour(),
		IsBusinessHours: &business,
	}
	if info.BootTime > 0 {
		boot := time.Unix(int64(info.BootTime), 0).UTC().Format(time.RFC3339)
		d.LastReboot = &boot
	}
	return d
}

type iface struct {
	name string
	mac  string
	ip   net.IP
	net  *net.IPNet
}

// primaryInterface returns the first up, non-loopback interface with an IPv4
// address, and the number of up, non-loopback interfaces.
func primaryInterface(list gnet.InterfaceStatList) (*iface, int) {
	var primary *iface
	count := 0
	for _, in := range list {
		if !hasFlag(in.Flags, "up") || hasFlag(in.Flags, "loopback") {
			continue
		}
		count++
		if primary != nil {
			continue
		}
		for _, a := range in.Addrs {
			ip, ipnet, err := net.ParseCIDR(a.Addr)
			if err != nil || ip.To4() == nil {
				continue
			}
			primary = &iface{name: in.Name, mac: in.HardwareAddr, ip: ip, net: ipnet}
			break
		}
	}
	return primary, count
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func network(primary *iface, count int) *model.NetworkDimension {
	d := &model.NetworkDimension{InterfaceCount: count, NetworkZone: "unknown"}
	if primary == nil {
		return d
	}
	subnet := primary.net.String()
	d.Subnet = &subnet
	d.IsWifi = strings.HasPrefix(primary.name, "wl")
	if primary.ip.IsPrivate() {
		d.NetworkZone = "internal"
	} else {
		d.NetworkZone = "external"
	}
	return d
}

func listeningPorts(conns []gnet.ConnectionStat) []model.PortInfo {
	services := make(map[int]string, len(scan.LocalProbePorts))
	for _, p := range scan.LocalProbePorts {
		services[p.Port] = p.Service
	}

	seen := make(map[int]bool)
	var out []model.PortInfo
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		port := int(c.Laddr.Port)
		if port == 0 || seen[port] {
			continue
		}
		seen[port] = true
		svc := services[port]
		if svc == "" {
			svc = "unknown"
		}
		out = append(out, model.PortInfo{Port: port, Service: svc, State: model.PortStateOpen, Protocol: "tcp"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// exposedPorts fills the port findings of D6 from the listening ports.
func exposedPorts(ports []model.PortInfo) *model.VulnerabilityDimension {
	d := &model.VulnerabilityDimension{TotalOpenPorts: len(ports), DangerousPortsOpen: []int{}}
	for _, p := range ports {
		if risk.IsDangerousPort(p.Port) {
			d.DangerousPortsOpen = append(d.DangerousPortsOpen, p.Port)
		}
	}
	return d
}

func connectionCounts(conns []gnet.ConnectionStat) (active, established int) {
	for _, c := range conns {
		switch c.Status {
		case "LISTEN", "CLOSE", "NONE", "":
		case "ESTABLISHED":
			active++
			established++
		default:
			active++
		}
	}
	return active, established
}

func megabytes(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
