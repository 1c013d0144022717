package opcua

import (
	"context"
	"fmt"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/sourcegraph/conc"

	"github.com/fbflow/fbflow/config"
	"github.com/fbflow/fbflow/errs"
	"github.com/fbflow/fbflow/internal/fb"
	"github.com/fbflow/fbflow/internal/iec"
	"github.com/fbflow/fbflow/internal/observability"
	"github.com/fbflow/fbflow/internal/telemetry"
)

// externalEventPort is the input event port an externally triggered chain
// enters a communication block through.
const externalEventPort = 0

// ChainStarter is the engine surface the bridge needs: the ability to kick
// off a new event chain from an external stimulus.
type ChainStarter interface {
	StartEventChain(fb.EventEntry)
}

// Bridge owns one OPC UA server instance per process and the live mapping
// between function-block identities and address-space nodes. Construct it
// explicitly and hand it to the communication layers that need it.
type Bridge struct {
	cfg      config.OPCUASettings
	srv      *server.Server
	registry *NodeRegistry
	resolver *PathResolver
	engine   ChainStarter
	log      observability.Logger
	metrics  *telemetry.RuntimeMetrics
	wg       conc.WaitGroup
}

// NewBridge constructs the server, its node registry, and its path resolver.
// When the certificate file is missing, a self-signed certificate and a new
// key are generated on the fly; an existing certificate is used with the
// configured key file as is.
func NewBridge(cfg config.OPCUASettings, engine ChainStarter, log observability.Logger, metrics *telemetry.RuntimeMetrics) (*Bridge, error) {
	if log == nil {
		log = observability.Noop()
	}
	if err := ensurePKI(cfg, log); err != nil {
		return nil, fmt.Errorf("prepare pki: %w", err)
	}

	srv, err := server.New(
		ua.ApplicationDescription{
			ApplicationURI:  cfg.ApplicationURI,
			ProductURI:      cfg.ApplicationURI,
			ApplicationName: ua.LocalizedText{Text: "fbflow runtime", Locale: "en"},
			ApplicationType: ua.ApplicationTypeServer,
		},
		cfg.CertFile,
		cfg.KeyFile,
		fmt.Sprintf("opc.tcp://0.0.0.0:%d", cfg.Port),
		server.WithAnonymousIdentity(true),
		server.WithSecurityPolicyNone(true),
		server.WithInsecureSkipVerify(),
	)
	if err != nil {
		return nil, fmt.Errorf("create opcua server: %w", err)
	}

	b := &Bridge{
		cfg:     cfg,
		srv:     srv,
		engine:  engine,
		log:     log,
		metrics: metrics,
	}
	b.registry = NewNodeRegistry(srv, log, metrics)
	b.resolver = NewPathResolver(cfg.Endpoint, b.registry, log)
	return b, nil
}

// Registry exposes the node registry.
func (b *Bridge) Registry() *NodeRegistry { return b.registry }

// Resolver exposes the browse-path resolver.
func (b *Bridge) Resolver() *PathResolver { return b.resolver }

// Run serves the address space until the context is cancelled, then closes
// the server.
func (b *Bridge) Run(ctx context.Context) error {
	b.wg.Go(func() {
		if err := b.srv.ListenAndServe(); err != nil {
			b.log.Error("opcua server stopped", observability.Err(err))
		}
	})
	b.log.Info("opcua server listening", observability.Int("port", b.cfg.Port))
	<-ctx.Done()
	return b.Close()
}

// Close shuts the server down and waits for the serve goroutine to exit.
func (b *Bridge) Close() error {
	err := b.srv.Close()
	b.wg.Wait()
	return err
}

// ExposeOutput mirrors the function block's output data port into the address
// space, creating the object node and the variable node as needed.
func (b *Bridge) ExposeOutput(blk fb.FunctionBlock, portID int) (ua.NodeID, error) {
	return b.registry.VariableNode(blk, portID)
}

// UpdateDataPoint writes a fresh value to an exposed output port node.
func (b *Bridge) UpdateDataPoint(id ua.NodeID, v iec.Value) error {
	return b.registry.UpdateNodeValue(id, v)
}

// RegisterWriteBinding arranges for client writes against the variable node
// to be delivered to the communication layer. The layer's verdict decides
// whether a new event chain fires on its block.
func (b *Bridge) RegisterWriteBinding(id ua.NodeID, layer fb.ComLayer) error {
	if layer == nil {
		return errs.New("opcua/bridge", errs.CodeInvalid, errs.WithMessage("nil communication layer"))
	}
	node, ok := b.registry.VariableByID(id)
	if !ok {
		return errs.New("opcua/bridge", errs.CodeNotFound,
			errs.WithMessagef("no registered variable node %v", id))
	}
	node.SetWriteValueHandler(func(_ *server.Session, req ua.WriteValue) (ua.DataValue, ua.StatusCode) {
		return b.dispatchWrite(node, layer, req)
	})
	return nil
}

// dispatchWrite forwards a client write to the owning communication layer
// and, unless the layer reports ComNothing, triggers a new event chain on the
// layer's block. Index ranges are not applied; writes are scalar only.
func (b *Bridge) dispatchWrite(node *server.VariableNode, layer fb.ComLayer, req ua.WriteValue) (ua.DataValue, ua.StatusCode) {
	b.metrics.RecordWrite()

	resp := layer.RecvData(req.Value.Value, 0)
	if resp == fb.ComProcessDataOk {
		node.SetValue(req.Value)
	}
	if resp != fb.ComNothing {
		b.engine.StartEventChain(fb.EventEntry{FB: layer.CommFB(), Port: externalEventPort})
	}
	return req.Value, ua.Good
}
