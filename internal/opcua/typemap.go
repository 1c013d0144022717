// Package opcua bridges selected function-block data points into an OPC UA
// address space: scalar type mapping, node registration, browse-path
// resolution, and delivery of client writes back into the event-chain engine.
package opcua

import (
	"time"

	"github.com/awcullen/opcua/ua"

	"github.com/fbflow/fbflow/errs"
	"github.com/fbflow/fbflow/internal/iec"
)

// uaDataTypes maps IEC 61131 scalar type codes to OPC UA builtin datatype
// node ids, following PLCopen OPC UA Information Model Table 26 §5.2.
// Indexed by iec.TypeID; bounds-check with TypeID.Valid before indexing.
var uaDataTypes = [...]ua.NodeID{
	iec.TypeANY:         ua.DataTypeIDBaseDataType,
	iec.TypeBOOL:        ua.DataTypeIDBoolean,
	iec.TypeSINT:        ua.DataTypeIDSByte,
	iec.TypeINT:         ua.DataTypeIDInt16,
	iec.TypeDINT:        ua.DataTypeIDInt32,
	iec.TypeLINT:        ua.DataTypeIDInt64,
	iec.TypeUSINT:       ua.DataTypeIDByte,
	iec.TypeUINT:        ua.DataTypeIDUInt16,
	iec.TypeUDINT:       ua.DataTypeIDUInt32,
	iec.TypeULINT:       ua.DataTypeIDUInt64,
	iec.TypeBYTE:        ua.DataTypeIDByte,
	iec.TypeWORD:        ua.DataTypeIDUInt16,
	iec.TypeDWORD:       ua.DataTypeIDUInt32,
	iec.TypeLWORD:       ua.DataTypeIDUInt64,
	iec.TypeDATE:        ua.DataTypeIDDateTime,
	iec.TypeTimeOfDay:   ua.DataTypeIDDateTime,
	iec.TypeDateAndTime: ua.DataTypeIDDateTime,
	iec.TypeTIME:        ua.DataTypeIDDouble,
	iec.TypeREAL:        ua.DataTypeIDFloat,
	iec.TypeLREAL:       ua.DataTypeIDDouble,
	iec.TypeSTRING:      ua.DataTypeIDString,
	iec.TypeWSTRING:     ua.DataTypeIDString,
}

// DataTypeID returns the OPC UA datatype node id for the given IEC scalar
// type. Derived, enumerated, subrange, array, and struct types are
// unsupported.
func DataTypeID(t iec.TypeID) (ua.NodeID, error) {
	if !t.Valid() || int(t) >= len(uaDataTypes) {
		return nil, errs.New("opcua/typemap", errs.CodeTypeMismatch,
			errs.WithMessagef("unsupported IEC datatype code %d", t))
	}
	return uaDataTypes[t], nil
}

// Variant converts a tagged IEC scalar value into the Go scalar the OPC UA
// stack encodes for the mapped builtin type. The value's Go representation
// must match its declared type (see iec.Zero); a disagreement is reported as
// a type mismatch.
func Variant(v iec.Value) (any, error) {
	if !v.Type.Valid() {
		return nil, errs.New("opcua/typemap", errs.CodeTypeMismatch,
			errs.WithMessagef("unsupported IEC datatype code %d", v.Type))
	}
	switch v.Type {
	case iec.TypeANY:
		return v.Data, nil
	case iec.TypeBOOL:
		if b, ok := v.Data.(bool); ok {
			return b, nil
		}
	case iec.TypeSINT:
		if n, ok := v.Data.(int8); ok {
			return n, nil
		}
	case iec.TypeINT:
		if n, ok := v.Data.(int16); ok {
			return n, nil
		}
	case iec.TypeDINT:
		if n, ok := v.Data.(int32); ok {
			return n, nil
		}
	case iec.TypeLINT:
		if n, ok := v.Data.(int64); ok {
			return n, nil
		}
	case iec.TypeUSINT, iec.TypeBYTE:
		if n, ok := v.Data.(uint8); ok {
			return n, nil
		}
	case iec.TypeUINT, iec.TypeWORD:
		if n, ok := v.Data.(uint16); ok {
			return n, nil
		}
	case iec.TypeUDINT, iec.TypeDWORD:
		if n, ok := v.Data.(uint32); ok {
			return n, nil
		}
	case iec.TypeULINT, iec.TypeLWORD:
		if n, ok := v.Data.(uint64); ok {
			return n, nil
		}
	case iec.TypeDATE, iec.TypeTimeOfDay, iec.TypeDateAndTime:
		if ts, ok := v.Data.(time.Time); ok {
			return ts, nil
		}
	case iec.TypeTIME:
		// TIME rides as a Double carrying seconds.
		if d, ok := v.Data.(time.Duration); ok {
			return d.Seconds(), nil
		}
	case iec.TypeREAL:
		if f, ok := v.Data.(float32); ok {
			return f, nil
		}
	case iec.TypeLREAL:
		if f, ok := v.Data.(float64); ok {
			return f, nil
		}
	case iec.TypeSTRING, iec.TypeWSTRING:
		if s, ok := v.Data.(string); ok {
			return s, nil
		}
	}
	return nil, errs.New("opcua/typemap", errs.CodeTypeMismatch,
		errs.WithMessagef("value %T does not represent IEC %s", v.Data, v.Type))
}

// ReadBackDataPoint converts a variant received from the OPC UA stack into
// the IEC value slot dst, whose Type field selects the expected datatype.
// Mismatched variants are rejected, never coerced.
func ReadBackDataPoint(variant any, dst *iec.Value) error {
	if dst == nil {
		return errs.New("opcua/typemap", errs.CodeInvalid, errs.WithMessage("nil destination"))
	}
	if !dst.Type.Valid() {
		return errs.New("opcua/typemap", errs.CodeTypeMismatch,
			errs.WithMessagef("unsupported IEC datatype code %d", dst.Type))
	}
	if dst.Type == iec.TypeANY {
		dst.Data = variant
		return nil
	}
	if dst.Type == iec.TypeTIME {
		seconds, ok := variant.(float64)
		if !ok {
			return errs.New("opcua/typemap", errs.CodeTypeMismatch,
				errs.WithMessagef("variant %T does not decode IEC TIME", variant))
		}
		dst.Data = time.Duration(seconds * float64(time.Second))
		return nil
	}

	want := iec.Zero(dst.Type)
	ok := false
	switch want.Data.(type) {
	case bool:
		_, ok = variant.(bool)
	case int8:
		_, ok = variant.(int8)
	case int16:
		_, ok = variant.(int16)
	case int32:
		_, ok = variant.(int32)
	case int64:
		_, ok = variant.(int64)
	case uint8:
		_, ok = variant.(uint8)
	case uint16:
		_, ok = variant.(uint16)
	case uint32:
		_, ok = variant.(uint32)
	case uint64:
		_, ok = variant.(uint64)
	case float32:
		_, ok = variant.(float32)
	case float64:
		_, ok = variant.(float64)
	case string:
		_, ok = variant.(string)
	case time.Time:
		_, ok = variant.(time.Time)
	}
	if !ok {
		return errs.New("opcua/typemap", errs.CodeTypeMismatch,
			errs.WithMessagef("variant %T does not decode IEC %s", variant, dst.Type))
	}
	dst.Data = variant
	return nil
}
