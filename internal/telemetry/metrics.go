package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fbflow/fbflow"

// RuntimeMetrics groups the counters emitted by the engine and the OPC UA
// bridge. A nil *RuntimeMetrics is a valid no-op collaborator.
type RuntimeMetrics struct {
	eventsDispatched metric.Int64Counter
	eventsDropped    metric.Int64Counter
	cycles           metric.Int64Counter
	overruns         metric.Int64Counter
	nodesCreated     metric.Int64Counter
	writesReceived   metric.Int64Counter
}

// NewRuntimeMetrics registers the runtime instruments on the provider's meter.
func NewRuntimeMetrics(provider metric.MeterProvider) (*RuntimeMetrics, error) {
	meter := provider.Meter(meterName)

	dispatched, err := meter.Int64Counter("fbflow.engine.events.dispatched",
		metric.WithDescription("Event entries delivered to function blocks"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("fbflow.engine.events.dropped",
		metric.WithDescription("Event entries dropped because a queue was full"))
	if err != nil {
		return nil, err
	}
	cycles, err := meter.Int64Counter("fbflow.engine.cycles",
		metric.WithDescription("Completed dispatch cycles"))
	if err != nil {
		return nil, err
	}
	overruns, err := meter.Int64Counter("fbflow.engine.cycle.overruns",
		metric.WithDescription("Cycle deadline overruns"))
	if err != nil {
		return nil, err
	}
	nodes, err := meter.Int64Counter("fbflow.opcua.nodes.created",
		metric.WithDescription("Address-space nodes created by the bridge"))
	if err != nil {
		return nil, err
	}
	writes, err := meter.Int64Counter("fbflow.opcua.writes.received",
		metric.WithDescription("Client writes delivered to communication layers"))
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		eventsDispatched: dispatched,
		eventsDropped:    dropped,
		cycles:           cycles,
		overruns:         overruns,
		nodesCreated:     nodes,
		writesReceived:   writes,
	}, nil
}

// RecordDispatch counts one delivered event entry.
func (m *RuntimeMetrics) RecordDispatch(engineID string) {
	if m == nil {
		return
	}
	m.eventsDispatched.Add(context.Background(), 1, engineAttr(engineID))
}

// RecordDrop counts one dropped event entry for the named queue.
func (m *RuntimeMetrics) RecordDrop(engineID, queue string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("engine.id", engineID), attribute.String("queue", queue)))
}

// RecordCycle counts one completed dispatch cycle.
func (m *RuntimeMetrics) RecordCycle(engineID string) {
	if m == nil {
		return
	}
	m.cycles.Add(context.Background(), 1, engineAttr(engineID))
}

// RecordOverrun counts one deadline overrun.
func (m *RuntimeMetrics) RecordOverrun(engineID string) {
	if m == nil {
		return
	}
	m.overruns.Add(context.Background(), 1, engineAttr(engineID))
}

// RecordNodeCreated counts one created address-space node of the given kind.
func (m *RuntimeMetrics) RecordNodeCreated(kind string) {
	if m == nil {
		return
	}
	m.nodesCreated.Add(context.Background(), 1, metric.WithAttributes(attribute.String("node.kind", kind)))
}

// RecordWrite counts one client write delivered to a communication layer.
func (m *RuntimeMetrics) RecordWrite() {
	if m == nil {
		return
	}
	m.writesReceived.Add(context.Background(), 1)
}

func engineAttr(engineID string) metric.AddOption {
	return metric.WithAttributes(attribute.String("engine.id", engineID))
}
