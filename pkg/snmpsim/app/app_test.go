package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/app"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/config"
)

const appWalk = `# cable modem capture
1.3.6.1.2.1.1.1.0 = STRING: "Walk-file description (overridden per type)"
1.3.6.1.2.1.1.3.0 = TimeTicks: (500) 0:00:05.00
1.3.6.1.2.1.1.5.0 = STRING: cm-lab-1
1.3.6.1.2.1.2.2.1.10.1 = Counter32: 123456
`

func startApp(t *testing.T, basePort int) *app.App {
	t.Helper()

	dir := t.TempDir()
	walkPath := filepath.Join(dir, "cable_modem.walk")
	require.NoError(t, os.WriteFile(walkPath, []byte(appWalk), 0o644))

	cfg := &config.Config{
		DeviceTypes: []config.DeviceTypeDef{{
			Name:      "cable_modem",
			WalkFile:  "cable_modem.walk",
			SysDescr:  "Cable Modem Simulator CM-5000",
			PortStart: basePort,
			PortEnd:   basePort + 4,
		}},
		PortRangeStart:   basePort,
		PortRangeEnd:     basePort + 4,
		WalkRoot:         dir,
		MaxDevices:       10,
		Host:             "127.0.0.1",
		WorkerPoolSize:   4,
		DefaultCommunity: "public",
	}
	require.NoError(t, cfg.Validate())

	a := app.New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() {
		a.Stop()
		cancel()
	})
	return a
}

func appClient(t *testing.T, port int) *gosnmp.GoSNMP {
	t.Helper()
	g := &gosnmp.GoSNMP{
		Target:    "127.0.0.1",
		Port:      uint16(port),
		Community: "public",
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	require.NoError(t, g.Connect())
	t.Cleanup(func() { _ = g.Conn.Close() })
	return g
}

func TestApp_ServesConfiguredDeviceType(t *testing.T) {
	a := startApp(t, 41100)
	g := appClient(t, 41100)

	res, err := g.Get([]string{".1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)
	require.Len(t, res.Variables, 1)
	// The per-type sys_descr override wins over the walk file text.
	assert.Equal(t, "Cable Modem Simulator CM-5000", string(res.Variables[0].Value.([]byte)))

	stats := a.Controller().GetStats()
	assert.Equal(t, int64(1), stats.Pool.ActiveCount)
	assert.GreaterOrEqual(t, stats.Ingress.ResponsesTotal, int64(1))
}

func TestApp_FaultInjectionThroughController(t *testing.T) {
	a := startApp(t, 41110)
	g := appClient(t, 41111)

	// Prime the agent.
	_, err := g.Get([]string{".1.3.6.1.2.1.1.5.0"})
	require.NoError(t, err)

	require.NoError(t, a.Controller().InstallFault(41111, models.FaultPacketLoss,
		models.FaultConfig{Rate: 1.0}))
	_, err = g.Get([]string{".1.3.6.1.2.1.1.5.0"})
	assert.Error(t, err, "full packet loss must time out")

	require.NoError(t, a.Controller().ClearAllFaults(41111))
	_, err = g.Get([]string{".1.3.6.1.2.1.1.5.0"})
	assert.NoError(t, err)
}

func TestApp_RebootResetsUptime(t *testing.T) {
	a := startApp(t, 41120)
	g := appClient(t, 41122)

	time.Sleep(50 * time.Millisecond)
	first, err := g.Get([]string{".1.3.6.1.2.1.1.3.0"})
	require.NoError(t, err)

	require.NoError(t, a.Controller().Reboot(41122))
	second, err := g.Get([]string{".1.3.6.1.2.1.1.3.0"})
	require.NoError(t, err)

	ticksBefore := toUint(t, first.Variables[0].Value)
	ticksAfter := toUint(t, second.Variables[0].Value)
	assert.Less(t, ticksAfter, ticksBefore+1, "reboot must reset sysUpTime")
}

func toUint(t *testing.T, v interface{}) uint64 {
	t.Helper()
	switch x := v.(type) {
	case uint:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	default:
		t.Fatalf("unexpected value type %T", v)
		return 0
	}
}
