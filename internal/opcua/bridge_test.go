package opcua

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/fbflow/fbflow/config"
	"github.com/fbflow/fbflow/errs"
	"github.com/fbflow/fbflow/internal/fb"
	"github.com/fbflow/fbflow/internal/iec"
	"github.com/fbflow/fbflow/internal/testutil"
)

// chainRecorder captures StartEventChain calls from the write dispatcher.
type chainRecorder struct {
	mu      sync.Mutex
	entries []fb.EventEntry
}

func (c *chainRecorder) StartEventChain(e fb.EventEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *chainRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// testFB is a function block with one typed output port.
type testFB struct {
	name string
	out  fb.DataPort
}

func (f *testFB) InstanceName() string { return f.name }

func (f *testFB) InterfaceSpec() *fb.InterfaceSpec {
	return &fb.InterfaceSpec{
		EventInputs: []string{"REQ"},
		DataOutputs: []fb.DataPort{f.out},
	}
}

func (f *testFB) ReceiveInputEvent(int, fb.Execution) {}

// fakeLayer is a communication layer scripted with a fixed verdict.
type fakeLayer struct {
	block    fb.FunctionBlock
	verdict  fb.ComResponse
	mu       sync.Mutex
	received []any
}

func (l *fakeLayer) RecvData(data any, _ int) fb.ComResponse {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = append(l.received, data)
	return l.verdict
}

func (l *fakeLayer) CommFB() fb.FunctionBlock { return l.block }

func newTestBridge(t *testing.T) (*Bridge, *chainRecorder, *testutil.RecordingLogger) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.OPCUASettings{
		Port:           48840,
		Endpoint:       "opc.tcp://localhost:48840",
		CertFile:       filepath.Join(dir, "server.crt"),
		KeyFile:        filepath.Join(dir, "server.key"),
		ApplicationURI: "urn:fbflow:test",
	}
	chain := new(chainRecorder)
	log := testutil.NewRecordingLogger()
	b, err := NewBridge(cfg, chain, log, nil)
	require.NoError(t, err)
	return b, chain, log
}

func TestEnsurePKIGeneratesAndReusesCertificates(t *testing.T) {
	dir := t.TempDir()
	cfg := config.OPCUASettings{
		CertFile:       filepath.Join(dir, "pki", "server.crt"),
		KeyFile:        filepath.Join(dir, "pki", "server.key"),
		ApplicationURI: "urn:fbflow:test",
	}
	log := testutil.NewRecordingLogger()

	require.NoError(t, ensurePKI(cfg, log))
	for _, path := range []string{cfg.CertFile, cfg.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}

	require.NoError(t, ensurePKI(cfg, log))
	if log.CountMessage("info", "using existing pki certificate") != 1 {
		t.Fatal("second ensurePKI call must reuse the certificate")
	}
}

func TestObjectNodeIsCachedPerInstanceName(t *testing.T) {
	b, _, log := newTestBridge(t)
	blk := &testFB{name: "FB1", out: fb.DataPort{Name: "OUT", Type: iec.TypeDINT}}

	first, err := b.Registry().ObjectNode(blk)
	require.NoError(t, err)
	second, err := b.Registry().ObjectNode(blk)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, ua.NodeID(ua.NodeIDString{NamespaceIndex: 1, ID: "FB1"}), first)
	require.Equal(t, 1, log.CountMessage("info", "object node added"))
}

func TestVariableNodeMirrorsOutputPort(t *testing.T) {
	b, _, _ := newTestBridge(t)
	blk := &testFB{name: "FB1", out: fb.DataPort{Name: "Out", Type: iec.TypeDINT}}

	id, err := b.ExposeOutput(blk, 0)
	require.NoError(t, err)
	require.Equal(t, ua.NodeID(ua.NodeIDString{NamespaceIndex: 1, ID: "Out"}), id)

	node, ok := b.Registry().VariableByID(id)
	require.True(t, ok)
	require.NotNil(t, node)

	// Second request reuses the node.
	again, err := b.ExposeOutput(blk, 0)
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func TestVariableNodeRejectsUnknownPort(t *testing.T) {
	b, _, _ := newTestBridge(t)
	blk := &testFB{name: "FB1", out: fb.DataPort{Name: "Out", Type: iec.TypeDINT}}

	_, err := b.ExposeOutput(blk, 3)
	require.True(t, errs.Is(err, errs.CodeInvalid), "got %v", err)
}

func TestUpdateNodeValueTypeChecks(t *testing.T) {
	b, _, _ := newTestBridge(t)
	blk := &testFB{name: "FB1", out: fb.DataPort{Name: "Out", Type: iec.TypeDINT}}
	id, err := b.ExposeOutput(blk, 0)
	require.NoError(t, err)

	require.NoError(t, b.UpdateDataPoint(id, iec.Value{Type: iec.TypeDINT, Data: int32(7)}))

	err = b.UpdateDataPoint(id, iec.Value{Type: iec.TypeBOOL, Data: true})
	require.True(t, errs.Is(err, errs.CodeTypeMismatch), "got %v", err)

	err = b.UpdateDataPoint(ua.NodeIDString{NamespaceIndex: 1, ID: "nope"}, iec.Value{Type: iec.TypeDINT, Data: int32(7)})
	require.True(t, errs.Is(err, errs.CodeNotFound), "got %v", err)
}

func TestRegisterWriteBindingRequiresKnownNode(t *testing.T) {
	b, _, _ := newTestBridge(t)
	layer := &fakeLayer{block: &testFB{name: "FB1"}, verdict: fb.ComProcessDataOk}

	err := b.RegisterWriteBinding(ua.NodeIDString{NamespaceIndex: 1, ID: "ghost"}, layer)
	require.True(t, errs.Is(err, errs.CodeNotFound), "got %v", err)

	blk := &testFB{name: "FB1", out: fb.DataPort{Name: "Out", Type: iec.TypeDINT}}
	id, err := b.ExposeOutput(blk, 0)
	require.NoError(t, err)
	require.NoError(t, b.RegisterWriteBinding(id, layer))

	err = b.RegisterWriteBinding(id, nil)
	require.True(t, errs.Is(err, errs.CodeInvalid), "got %v", err)
}

func writeValueOf(v any) ua.WriteValue {
	now := time.Now().UTC()
	return ua.WriteValue{
		AttributeID: ua.AttributeIDValue,
		Value:       ua.NewDataValue(v, 0, now, 0, now, 0),
	}
}

func TestDispatchWriteForwardsDataAndTriggersChain(t *testing.T) {
	b, chain, _ := newTestBridge(t)
	blk := &testFB{name: "CommFB", out: fb.DataPort{Name: "Out", Type: iec.TypeDINT}}
	layer := &fakeLayer{block: blk, verdict: fb.ComProcessDataOk}

	id, err := b.ExposeOutput(blk, 0)
	require.NoError(t, err)
	node, ok := b.Registry().VariableByID(id)
	require.True(t, ok)

	_, status := b.dispatchWrite(node, layer, writeValueOf(int32(7)))
	require.Equal(t, ua.Good, status)

	require.Equal(t, []any{int32(7)}, layer.received)
	require.Equal(t, 1, chain.count())
	require.Equal(t, fb.EventEntry{FB: blk, Port: externalEventPort}, chain.entries[0])
}

func TestDispatchWriteNothingIsDropped(t *testing.T) {
	b, chain, _ := newTestBridge(t)
	blk := &testFB{name: "CommFB", out: fb.DataPort{Name: "Out", Type: iec.TypeDINT}}
	layer := &fakeLayer{block: blk, verdict: fb.ComNothing}

	id, err := b.ExposeOutput(blk, 0)
	require.NoError(t, err)
	node, ok := b.Registry().VariableByID(id)
	require.True(t, ok)

	b.dispatchWrite(node, layer, writeValueOf(int32(7)))

	require.Len(t, layer.received, 1)
	require.Equal(t, 0, chain.count())
}

func TestDispatchWriteNonOkVerdictStillTriggersChain(t *testing.T) {
	b, chain, _ := newTestBridge(t)
	blk := &testFB{name: "CommFB", out: fb.DataPort{Name: "Out", Type: iec.TypeDINT}}
	layer := &fakeLayer{block: blk, verdict: fb.ComProcessDataRecvFailed}

	id, err := b.ExposeOutput(blk, 0)
	require.NoError(t, err)
	node, ok := b.Registry().VariableByID(id)
	require.True(t, ok)

	b.dispatchWrite(node, layer, writeValueOf(int32(7)))
	require.Equal(t, 1, chain.count())
}
