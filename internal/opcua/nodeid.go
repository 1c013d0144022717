package opcua

import (
	"strconv"
	"strings"

	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"

	"github.com/fbflow/fbflow/errs"
)

// ParseNodeID parses a textual node reference of the form
// "namespace:identifierType:identifier", e.g. "2:string:Q" or "1:numeric:42".
// Identifier types are numeric, string, guid, and bytestring. Communication
// layers use this to address pre-existing nodes given in connection
// parameters.
func ParseNodeID(s string) (ua.NodeID, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) != 3 {
		return nil, errs.New("opcua/nodeid", errs.CodeInvalid,
			errs.WithMessagef("node reference %q is not namespace:type:identifier", s))
	}

	nsRaw, kind, ident := parts[0], strings.ToLower(parts[1]), parts[2]
	ns, err := strconv.ParseUint(nsRaw, 10, 16)
	if err != nil {
		return nil, errs.New("opcua/nodeid", errs.CodeInvalid,
			errs.WithMessagef("namespace index %q is not a uint16", nsRaw), errs.WithCause(err))
	}

	switch kind {
	case "numeric":
		id, err := strconv.ParseUint(ident, 10, 32)
		if err != nil {
			return nil, errs.New("opcua/nodeid", errs.CodeInvalid,
				errs.WithMessagef("numeric identifier %q is not a uint32", ident), errs.WithCause(err))
		}
		return ua.NodeIDNumeric{NamespaceIndex: uint16(ns), ID: uint32(id)}, nil
	case "string":
		return ua.NodeIDString{NamespaceIndex: uint16(ns), ID: ident}, nil
	case "guid":
		id, err := uuid.Parse(ident)
		if err != nil {
			return nil, errs.New("opcua/nodeid", errs.CodeInvalid,
				errs.WithMessagef("guid identifier %q is malformed", ident), errs.WithCause(err))
		}
		return ua.NodeIDGUID{NamespaceIndex: uint16(ns), ID: id}, nil
	case "bytestring":
		return ua.NodeIDOpaque{NamespaceIndex: uint16(ns), ID: ua.ByteString(ident)}, nil
	default:
		return nil, errs.New("opcua/nodeid", errs.CodeInvalid,
			errs.WithMessagef("unknown identifier type %q", kind))
	}
}
