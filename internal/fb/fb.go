// Package fb declares the contracts between the event-chain execution engine
// and the function blocks it drives. The engine owns scheduling; function
// blocks own computation. Implementations of FunctionBlock live outside this
// module and are registered with the engine through event entries.
package fb

import "github.com/fbflow/fbflow/internal/iec"

// FunctionBlock is an IEC 61499 function block instance as seen by the
// runtime. ReceiveInputEvent is synchronous: it must not block for unbounded
// time and must not suspend the calling goroutine. It may chain further events
// through the Execution handle it is given.
type FunctionBlock interface {
	InstanceName() string
	InterfaceSpec() *InterfaceSpec
	ReceiveInputEvent(port int, exec Execution)
}

// Execution is the engine surface handed to a function block while one of its
// input events is being dispatched.
type Execution interface {
	AddEventEntry(EventEntry)
	AddInitEventEntry(EventEntry)
}

// EventEntry pairs a function block with the ordinal of one of its input
// event ports. The reference to the block is non-owning: block lifetime is
// managed by the FB graph, which must outlive the engine.
type EventEntry struct {
	FB   FunctionBlock
	Port int
}

// DataPort describes one data port of a function block interface.
type DataPort struct {
	Name string
	Type iec.TypeID
}

// InterfaceSpec describes the event and data ports of a function block.
// Ordinals used in EventEntry and by the bridge index into these slices.
type InterfaceSpec struct {
	EventInputs  []string
	EventOutputs []string
	DataInputs   []DataPort
	DataOutputs  []DataPort
}

// ComResponse is the verdict a communication layer returns for received data.
type ComResponse int

const (
	// ComNothing indicates the layer consumed nothing; no chain is triggered.
	ComNothing ComResponse = iota
	// ComInitOk acknowledges a successful layer initialisation.
	ComInitOk
	// ComInitTerminated reports that initialisation ended the layer.
	ComInitTerminated
	// ComProcessDataOk indicates the layer accepted the value.
	ComProcessDataOk
	// ComProcessDataTypeError reports a datatype mismatch in received data.
	ComProcessDataTypeError
	// ComProcessDataRecvFailed reports a receive-side failure.
	ComProcessDataRecvFailed
	// ComProcessDataSendFailed reports a send-side failure.
	ComProcessDataSendFailed
	// ComTerminated reports that the layer has shut down.
	ComTerminated
)

// ComLayer is a communication layer bound to a function block. The OPC UA
// bridge delivers client writes to RecvData; any response other than
// ComNothing triggers a new event chain on CommFB.
type ComLayer interface {
	RecvData(data any, size int) ComResponse
	CommFB() FunctionBlock
}
