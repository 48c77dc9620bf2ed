package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/risk"
)

// Tuesday, 10:30 UTC.
var collectedAt = time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)

func stubSources() Sources {
	return Sources{
		Host: func(context.Context) (*host.InfoStat, error) {
			return &host.InfoStat{
				Hostname:        "dev-laptop",
				Platform:        "ubuntu",
				PlatformVersion: "22.04",
				KernelArch:      "x86_64",
				Uptime:          40 * 86400,
				BootTime:        uint64(collectedAt.Add(-40 * 24 * time.Hour).Unix()),
			}, nil
		},
		Interfaces: func(context.Context) (gnet.InterfaceStatList, error) {
			return gnet.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: gnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
				{Name: "eth0", HardwareAddr: "aa:bb:cc:dd:ee:ff", Flags: []string{"up", "broadcast"},
					Addrs: gnet.InterfaceAddrList{{Addr: "fe80::1/64"}, {Addr: "192.168.1.42/24"}}},
				{Name: "wlan0", Flags: []string{"up"}},
				{Name: "docker0", Flags: []string{"broadcast"}},
			}, nil
		},
		IOCounters: func(context.Context) ([]gnet.IOCountersStat, error) {
			return []gnet.IOCountersStat{{BytesSent: 10 * 1024 * 1024, BytesRecv: 5 * 1024 * 1024}}, nil
		},
		Connections: func(context.Context) ([]gnet.ConnectionStat, error) {
			return []gnet.ConnectionStat{
				{Status: "LISTEN", Laddr: gnet.Addr{IP: "0.0.0.0", Port: 22}},
				{Status: "LISTEN", Laddr: gnet.Addr{IP: "::", Port: 22}},
				{Status: "LISTEN", Laddr: gnet.Addr{IP: "127.0.0.1", Port: 9999}},
				{Status: "ESTABLISHED", Laddr: gnet.Addr{Port: 51000}},
				{Status: "ESTABLISHED", Laddr: gnet.Addr{Port: 51001}},
				{Status: "TIME_WAIT", Laddr: gnet.Addr{Port: 51002}},
			}, nil
		},
		Load: func(context.Context) (*load.AvgStat, error) { return &load.AvgStat{Load1: 1.5}, nil },
		Pids: func(context.Context) ([]int32, error) { return []int32{1, 2, 3}, nil },
	}
}

func newCollector(src Sources) *Collector {
	c := NewCollector(src, "1.2.0", zap.NewNop())
	c.SetClock(func() time.Time { return collectedAt })
	return c
}

func TestCollect_buildsPayload(t *testing.T) {
	p, err := newCollector(stubSources()).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "dev-laptop", p.Hostname)
	assert.Equal(t, "192.168.1.42", p.IPAddress)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", p.MACAddress)
	assert.Equal(t, "Ubuntu", p.OSName)
	assert.Equal(t, "22.04", p.OSVersion)
	assert.Equal(t, "1.2.0", p.AgentVersion)
	require.NotNil(t, p.UptimeSeconds)
	assert.EqualValues(t, 40*86400, *p.UptimeSeconds)

	require.Len(t, p.OpenPorts, 2)
	assert.Equal(t, 22, p.OpenPorts[0].Port)
	assert.Equal(t, "ssh", p.OpenPorts[0].Service)
	assert.Equal(t, "unknown", p.OpenPorts[1].Service)

	vc := p.VectorContext
	require.NotNil(t, vc)
	require.NotNil(t, vc.D1Network)
	assert.Equal(t, 2, vc.D1Network.InterfaceCount)
	assert.Equal(t, "internal", vc.D1Network.NetworkZone)
	assert.Equal(t, "192.168.1.0/24", *vc.D1Network.Subnet)
	assert.Equal(t, 2, vc.D1Network.ActiveConnections)

	require.NotNil(t, vc.D3Behavior)
	assert.Equal(t, 3, vc.D3Behavior.ProcessCount)
	assert.InDelta(t, 1.5, vc.D3Behavior.LoadAverage, 1e-9)

	require.NotNil(t, vc.D4Temporal)
	assert.InDelta(t, 40, vc.D4Temporal.UptimeDays, 1e-9)
	assert.True(t, *vc.D4Temporal.IsBusinessHours)
	assert.Equal(t, 10, vc.D4Temporal.CollectionHour)

	require.NotNil(t, vc.D6Vulnerability)
	assert.Equal(t, 2, vc.D6Vulnerability.TotalOpenPorts)
	assert.Empty(t, vc.D6Vulnerability.DangerousPortsOpen)

	require.NotNil(t, vc.D10Traffic)
	assert.Equal(t, 3, vc.D10Traffic.ActiveTCPConnections)
	assert.Equal(t, 2, vc.D10Traffic.EstablishedConnections)
	assert.Equal(t, 2, vc.D10Traffic.ListeningPorts)
	assert.InDelta(t, 10, vc.D10Traffic.BytesSentMB, 1e-9)

	// The payload is scored by the dimension scorer.
	res := risk.Score(risk.InputFromHeartbeat(p, collectedAt))
	assert.NotNil(t, res.Context)
	assert.Contains(t, res.Factors, model.DimTemporal)
}

func TestCollect_hostInfoRequired(t *testing.T) {
	src := stubSources()
	src.Host = func(context.Context) (*host.InfoStat, error) { return nil, errors.New("no /proc") }

	_, err := newCollector(src).Collect(context.Background())
	assert.Error(t, err)
}

func TestCollect_partialTelemetry(t *testing.T) {
	fail := errors.New("denied")
	src := stubSources()
	src.Interfaces = func(context.Context) (gnet.InterfaceStatList, error) { return nil, fail }
	src.Connections = func(context.Context) ([]gnet.ConnectionStat, error) { return nil, fail }
	src.IOCounters = func(context.Context) ([]gnet.IOCountersStat, error) { return nil, fail }
	src.Load = func(context.Context) (*load.AvgStat, error) { return nil, fail }
	src.Pids = func(context.Context) ([]int32, error) { return nil, fail }

	p, err := newCollector(src).Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.IPAddress)
	assert.Nil(t, p.VectorContext.D1Network)
	assert.Nil(t, p.VectorContext.D3Behavior)
	assert.Nil(t, p.VectorContext.D6Vulnerability)
	assert.Nil(t, p.VectorContext.D10Traffic)
	assert.NotNil(t, p.VectorContext.D4Temporal)
}

func TestCollect_flagsDangerousListeners(t *testing.T) {
	src := stubSources()
	src.Connections = func(context.Context) ([]gnet.ConnectionStat, error) {
		return []gnet.ConnectionStat{
			{Status: "LISTEN", Laddr: gnet.Addr{IP: "0.0.0.0", Port: 3389}},
			{Status: "LISTEN", Laddr: gnet.Addr{IP: "0.0.0.0", Port: 443}},
			{Status: "LISTEN", Laddr: gnet.Addr{IP: "0.0.0.0", Port: 445}},
			{Status: "ESTABLISHED", Laddr: gnet.Addr{Port: 3306}},
		}, nil
	}

	p, err := newCollector(src).Collect(context.Background())
	require.NoError(t, err)

	d6 := p.VectorContext.D6Vulnerability
	require.NotNil(t, d6)
	assert.Equal(t, 3, d6.TotalOpenPorts)
	assert.Equal(t, []int{445, 3389}, d6.DangerousPortsOpen)

	res := risk.Score(risk.InputFromHeartbeat(p, collectedAt))
	assert.Positive(t, res.Factors[model.DimVulnerability])
}

func TestIsBusinessHours(t *testing.T) {
	cases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 3, 10, 17, 59, 0, 0, time.UTC), true},
		{time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 10, 7, 59, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), false}, // Saturday
	}
	for _, tc := range cases {
		if got := IsBusinessHours(tc.at); got != tc.want {
			t.Errorf("IsBusinessHours(%s) = %v, want %v", tc.at, got, tc.want)
		}
	}
}
