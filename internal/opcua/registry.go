package opcua

import (
	"fmt"
	"sync"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"

	"github.com/fbflow/fbflow/errs"
	"github.com/fbflow/fbflow/internal/fb"
	"github.com/fbflow/fbflow/internal/iec"
	"github.com/fbflow/fbflow/internal/observability"
	"github.com/fbflow/fbflow/internal/telemetry"
)

// applicationNamespace is the namespace index for runtime-created nodes.
const applicationNamespace uint16 = 1

// variableEntry tracks a created output-port node together with the IEC type
// it was declared with, so later updates can be type-checked.
type variableEntry struct {
	node    *server.VariableNode
	iecType iec.TypeID
}

// NodeRegistry creates, looks up, and caches the address-space nodes that
// mirror function blocks and their output data ports. Object nodes keyed by
// FB instance name; variable nodes keyed by instance name and port name.
type NodeRegistry struct {
	srv     *server.Server
	log     observability.Logger
	metrics *telemetry.RuntimeMetrics

	mu        sync.Mutex
	objects   map[string]ua.NodeID
	variables map[string]ua.NodeID
	values    map[ua.NodeID]*variableEntry
}

// NewNodeRegistry builds an empty registry over the server's address space.
func NewNodeRegistry(srv *server.Server, log observability.Logger, metrics *telemetry.RuntimeMetrics) *NodeRegistry {
	if log == nil {
		log = observability.Noop()
	}
	return &NodeRegistry{
		srv:       srv,
		log:       log,
		metrics:   metrics,
		objects:   make(map[string]ua.NodeID),
		variables: make(map[string]ua.NodeID),
		values:    make(map[ua.NodeID]*variableEntry),
	}
}

// ObjectNode returns the object node mirroring the function block, creating a
// folder-type node under the Objects folder on first request.
func (r *NodeRegistry) ObjectNode(blk fb.FunctionBlock) (ua.NodeID, error) {
	if blk == nil {
		return nil, errs.New("opcua/registry", errs.CodeInvalid, errs.WithMessage("nil function block"))
	}
	name := blk.InstanceName()
	if name == "" {
		return nil, errs.New("opcua/registry", errs.CodeInvalid, errs.WithMessage("function block has no instance name"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.objects[name]; ok {
		return id, nil
	}

	id := ua.NodeIDString{NamespaceIndex: applicationNamespace, ID: name}
	node := server.NewObjectNode(
		r.srv,
		id,
		ua.QualifiedName{NamespaceIndex: applicationNamespace, Name: name},
		ua.LocalizedText{Text: name},
		ua.LocalizedText{Text: fmt.Sprintf("Function block %s", name)},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDOrganizes,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.ObjectIDObjectsFolder},
			},
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition,
				IsInverse:       false,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.ObjectTypeIDFolderType},
			},
		},
		0,
	)
	r.srv.NamespaceManager().AddNode(node)
	r.objects[name] = id
	r.metrics.RecordNodeCreated("object")
	r.log.Info("address space: object node added",
		observability.String("fb", name))
	return id, nil
}

// VariableNode returns the variable node mirroring the function block's
// output data port, creating it as a HasComponent child of the block's object
// node on first request. The node's initial value is the zero scalar of the
// port's mapped OPC UA type.
//
// The node id is the bare port name in the application namespace; two blocks
// sharing a port name therefore collide. Callers that need disambiguation
// must name ports uniquely across exposed blocks.
func (r *NodeRegistry) VariableNode(blk fb.FunctionBlock, portID int) (ua.NodeID, error) {
	parent, err := r.ObjectNode(blk)
	if err != nil {
		return nil, err
	}

	spec := blk.InterfaceSpec()
	if spec == nil || portID < 0 || portID >= len(spec.DataOutputs) {
		return nil, errs.New("opcua/registry", errs.CodeInvalid,
			errs.WithMessagef("%s has no data output port %d", blk.InstanceName(), portID))
	}
	port := spec.DataOutputs[portID]

	r.mu.Lock()
	defer r.mu.Unlock()
	key := blk.InstanceName() + "/" + port.Name
	if id, ok := r.variables[key]; ok {
		return id, nil
	}

	dataType, err := DataTypeID(port.Type)
	if err != nil {
		return nil, err
	}
	initial, err := Variant(iec.Zero(port.Type))
	if err != nil {
		return nil, err
	}

	id := ua.NodeIDString{NamespaceIndex: applicationNamespace, ID: port.Name}
	now := time.Now().UTC()
	node := server.NewVariableNode(
		r.srv,
		id,
		ua.QualifiedName{NamespaceIndex: applicationNamespace, Name: port.Name},
		ua.LocalizedText{Text: port.Name},
		ua.LocalizedText{Text: fmt.Sprintf("Output %s of function block %s", port.Name, blk.InstanceName())},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasComponent,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: parent},
			},
		},
		ua.NewDataValue(initial, 0, now, 0, now, 0),
		dataType,
		ua.ValueRankScalar,
		[]uint32{},
		ua.AccessLevelsCurrentRead|ua.AccessLevelsCurrentWrite,
		250.0,
		false,
		nil,
	)
	r.srv.NamespaceManager().AddNode(node)
	r.variables[key] = id
	r.values[ua.NodeID(id)] = &variableEntry{node: node, iecType: port.Type}
	r.metrics.RecordNodeCreated("variable")
	r.log.Info("address space: variable node added",
		observability.String("fb", blk.InstanceName()),
		observability.String("port", port.Name))
	return id, nil
}

// UpdateNodeValue writes a fresh scalar of the mapped OPC UA type to the
// registered variable node. A value whose IEC type disagrees with the node's
// declared type is a programmer error: it is logged and rejected.
func (r *NodeRegistry) UpdateNodeValue(id ua.NodeID, v iec.Value) error {
	r.mu.Lock()
	entry, ok := r.values[id]
	r.mu.Unlock()
	if !ok {
		return errs.New("opcua/registry", errs.CodeNotFound,
			errs.WithMessagef("no registered variable node %v", id))
	}
	if v.Type != entry.iecType {
		err := errs.New("opcua/registry", errs.CodeTypeMismatch,
			errs.WithMessagef("node %v holds IEC %s, got %s", id, entry.iecType, v.Type))
		r.log.Error("rejecting typed value update", observability.Err(err))
		return err
	}
	variant, err := Variant(v)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entry.node.SetValue(ua.NewDataValue(variant, 0, now, 0, now, 0))
	return nil
}

// VariableByID returns the live variable node for a registered node id.
func (r *NodeRegistry) VariableByID(id ua.NodeID) (*server.VariableNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.values[id]
	if !ok {
		return nil, false
	}
	return entry.node, true
}

// CreateFolder adds a folder-type object node under parent with the given
// browse name and returns its id. Used by the path resolver to materialise
// missing path segments. A folder's id is the parent's string id and the name
// joined by a slash; under a parent without a string id, such as the Objects
// folder, it is the bare name. Equal names at different depths therefore stay
// distinct only below parents with string ids.
func (r *NodeRegistry) CreateFolder(parent ua.NodeID, name ua.QualifiedName) (ua.NodeID, error) {
	if name.Name == "" {
		return nil, errs.New("opcua/registry", errs.CodeInvalid, errs.WithMessage("empty folder name"))
	}
	id := ua.NodeIDString{NamespaceIndex: applicationNamespace, ID: folderIdentifier(parent, name.Name)}
	node := server.NewObjectNode(
		r.srv,
		id,
		name,
		ua.LocalizedText{Text: name.Name},
		ua.LocalizedText{Text: name.Name},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasComponent,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: parent},
			},
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition,
				IsInverse:       false,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.ObjectTypeIDFolderType},
			},
		},
		0,
	)
	r.srv.NamespaceManager().AddNode(node)
	r.metrics.RecordNodeCreated("folder")
	r.log.Info("address space: folder node added",
		observability.String("name", name.Name))
	return id, nil
}

func folderIdentifier(parent ua.NodeID, name string) string {
	if ps, ok := parent.(ua.NodeIDString); ok {
		return ps.ID + "/" + name
	}
	return name
}
