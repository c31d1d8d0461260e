package ingress_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/agent"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/catalog"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/ingress"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/pool"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/recovery"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/sim"
)

// These tests run a real UDP ingress and query it with gosnmp — the same
// client the monitoring stacks under test use.

const ingressWalk = `
1.3.6.1.2.1.1.1.0 = STRING: "Simulated access switch"
1.3.6.1.2.1.1.3.0 = TimeTicks: (0) 0:00:00.00
1.3.6.1.2.1.1.5.0 = STRING: sw-01
1.3.6.1.2.1.2.1.0 = INTEGER: 2
1.3.6.1.2.1.2.2.1.2.1 = STRING: "ge-0/0/1"
1.3.6.1.2.1.2.2.1.2.2 = STRING: "ge-0/0/2"
1.3.6.1.2.1.2.2.1.10.1 = Counter32: 1000
1.3.6.1.2.1.2.2.1.10.2 = Counter32: 2000
`

// harness wires catalog → pool → ingress on a small port range.
type harness struct {
	pool    *pool.Pool
	ingress *ingress.Ingress
	ports   []int
}

func newHarness(t *testing.T, basePort int, mutate func(*ingress.Config)) *harness {
	t.Helper()

	entries, err := catalog.ParseWalk(strings.NewReader(ingressWalk), nil)
	require.NoError(t, err)
	cat := catalog.Build("switch", entries, nil, nil)
	simulator := sim.New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	timers := recovery.New(nil)
	go timers.Start(ctx)

	var p *pool.Pool
	p, err = pool.New(pool.Config{
		Rules: []pool.Rule{{DeviceType: "switch", Start: basePort, End: basePort + 9}},
		Factory: func(port int, rule pool.Rule) *agent.Agent {
			return agent.New(agent.Config{
				Port:       port,
				DeviceType: rule.DeviceType,
				Community:  "public",
				Catalog:    cat,
				Simulator:  simulator,
				Timers:     timers,
				OnExit:     func(port int) {},
			})
		},
	})
	require.NoError(t, err)

	ports := make([]int, 0, 10)
	for port := basePort; port <= basePort+9; port++ {
		ports = append(ports, port)
	}

	cfg := ingress.Config{
		Host:          "127.0.0.1",
		Ports:         ports,
		Pool:          p,
		EnableHotPath: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	in := ingress.New(cfg)
	require.NoError(t, in.Start(ctx))

	t.Cleanup(func() {
		in.Stop()
		p.Close()
		cancel()
		timers.Stop()
	})
	return &harness{pool: p, ingress: in, ports: ports}
}

func client(t *testing.T, port int, community string) *gosnmp.GoSNMP {
	t.Helper()
	g := &gosnmp.GoSNMP{
		Target:    "127.0.0.1",
		Port:      uint16(port),
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	require.NoError(t, g.Connect())
	t.Cleanup(func() { _ = g.Conn.Close() })
	return g
}

// ─────────────────────────────────────────────────────────────────────────────
// End-to-end scenarios
// ─────────────────────────────────────────────────────────────────────────────

func TestE2E_GetSysDescr(t *testing.T) {
	h := newHarness(t, 40910, nil)
	g := client(t, h.ports[0], "public")

	res, err := g.Get([]string{".1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)
	require.Len(t, res.Variables, 1)
	assert.Equal(t, gosnmp.NoError, res.Error)
	assert.Equal(t, gosnmp.OctetString, res.Variables[0].Type)
	assert.Equal(t, "Simulated access switch", string(res.Variables[0].Value.([]byte)))
}

func TestE2E_WalkFromInternalNode(t *testing.T) {
	h := newHarness(t, 40920, nil)
	g := client(t, h.ports[1], "public")

	res, err := g.GetNext([]string{".1.3.6.1.2.1"})
	require.NoError(t, err)
	require.Len(t, res.Variables, 1)
	assert.Equal(t, ".1.3.6.1.2.1.1.1.0", res.Variables[0].Name)
	assert.Equal(t, gosnmp.OctetString, res.Variables[0].Type)

	// Successive GETNEXTs walk the whole catalog in increasing order.
	pdus, err := g.WalkAll(".1.3.6.1.2.1")
	require.NoError(t, err)
	assert.Len(t, pdus, 8)
	var prev models.OID
	for _, pdu := range pdus {
		oid, err := models.ParseOID(pdu.Name)
		require.NoError(t, err)
		if prev != nil {
			assert.Equal(t, 1, oid.Compare(prev), "walk must increase: %s after %s", oid, prev)
		}
		prev = oid
	}
}

func TestE2E_BulkBoundAndContinuation(t *testing.T) {
	h := newHarness(t, 40930, nil)
	g := client(t, h.ports[2], "public")

	res, err := g.GetBulk([]string{".1.3.6.1.2.1"}, 0, 5)
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.Variables), 5)

	// Continuing from the last OID keeps the walk gapless: the fifth leaf is
	// ifDescr.1, so the next bulk starts at ifDescr.2.
	last := res.Variables[len(res.Variables)-1]
	assert.Equal(t, ".1.3.6.1.2.1.2.2.1.2.1", last.Name)
	res2, err := g.GetBulk([]string{last.Name}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, ".1.3.6.1.2.1.2.2.1.2.2", res2.Variables[0].Name)
}

func TestE2E_CommunityMismatchIsSilent(t *testing.T) {
	h := newHarness(t, 40940, nil)

	// Prime the agent with a valid request first.
	good := client(t, h.ports[3], "public")
	_, err := good.Get([]string{".1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)

	bad := client(t, h.ports[3], "wrong")
	_, err = bad.Get([]string{".1.3.6.1.2.1.1.1.0"})
	assert.Error(t, err, "wrong community must time out, not get a response")
	assert.Greater(t, h.ingress.Stats().AuthFailures, int64(0))
}

func TestE2E_LazyCreationAndStats(t *testing.T) {
	h := newHarness(t, 40950, nil)
	require.Equal(t, int64(0), h.pool.Stats().ActiveCount)

	g := client(t, h.ports[4], "public")
	_, err := g.Get([]string{".1.3.6.1.2.1.1.5.0"})
	require.NoError(t, err)

	st := h.pool.Stats()
	assert.Equal(t, int64(1), st.ActiveCount, "first packet must create the agent")
	assert.Equal(t, int64(1), st.CreatedTotal)
	assert.Greater(t, h.ingress.Stats().ResponsesTotal, int64(0))
}

func TestE2E_PacketLossInjectionThenClear(t *testing.T) {
	h := newHarness(t, 40960, nil)
	g := client(t, h.ports[5], "public")

	// Create the agent, then install full packet loss.
	_, err := g.Get([]string{".1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)
	a, ok := h.pool.Peek(h.ports[5])
	require.True(t, ok)
	require.NoError(t, a.InstallFault(models.FaultPacketLoss, models.FaultConfig{Rate: 1.0}))

	_, err = g.Get([]string{".1.3.6.1.2.1.1.1.0"})
	assert.Error(t, err, "full packet loss must time out")

	require.NoError(t, a.ClearAllFaults())
	res, err := g.Get([]string{".1.3.6.1.2.1.1.1.0"})
	require.NoError(t, err)
	assert.Equal(t, gosnmp.NoError, res.Error)
}

func TestE2E_SetGetsReadOnly(t *testing.T) {
	h := newHarness(t, 40970, nil)
	g := client(t, h.ports[6], "public")

	res, err := g.Set([]gosnmp.SnmpPDU{{
		Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: "hacked",
	}})
	require.NoError(t, err)
	assert.Equal(t, gosnmp.ReadOnly, res.Error)
}

func TestE2E_HotPathServesUptime(t *testing.T) {
	h := newHarness(t, 40980, nil)
	g := client(t, h.ports[7], "public")

	// First request creates the agent via the slow path.
	_, err := g.Get([]string{".1.3.6.1.2.1.1.3.0"})
	require.NoError(t, err)

	before := h.ingress.Stats().HotPathHits
	res, err := g.Get([]string{".1.3.6.1.2.1.1.3.0"})
	require.NoError(t, err)
	assert.Equal(t, gosnmp.TimeTicks, res.Variables[0].Type)
	assert.Greater(t, h.ingress.Stats().HotPathHits, before,
		"second sysUpTime.0 request should take the hot path")
}

func TestE2E_GarbageDatagramCountsDecodeError(t *testing.T) {
	h := newHarness(t, 40990, func(cfg *ingress.Config) { cfg.EnableHotPath = false })
	g := client(t, h.ports[8], "public")

	_, err := g.Conn.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for h.ingress.Stats().DecodeErrors == 0 {
		if time.Now().After(deadline) {
			t.Fatal("decode error never counted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
