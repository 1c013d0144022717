package opcua

import (
	"testing"
	"time"

	"github.com/awcullen/opcua/ua"

	"github.com/fbflow/fbflow/errs"
	"github.com/fbflow/fbflow/internal/iec"
)

func TestTypeMapCoversEverySupportedScalar(t *testing.T) {
	for raw := 0; raw < iec.Count(); raw++ {
		typ := iec.TypeID(raw)
		dataType, err := DataTypeID(typ)
		if err != nil {
			t.Fatalf("DataTypeID(%s) failed: %v", typ, err)
		}
		if dataType == nil {
			t.Fatalf("DataTypeID(%s) returned nil", typ)
		}
		if _, err := Variant(iec.Zero(typ)); err != nil {
			t.Fatalf("Variant(Zero(%s)) failed: %v", typ, err)
		}
	}
}

func TestTypeMapPairings(t *testing.T) {
	cases := []struct {
		typ  iec.TypeID
		want ua.NodeID
	}{
		{iec.TypeANY, ua.DataTypeIDBaseDataType},
		{iec.TypeBOOL, ua.DataTypeIDBoolean},
		{iec.TypeSINT, ua.DataTypeIDSByte},
		{iec.TypeINT, ua.DataTypeIDInt16},
		{iec.TypeDINT, ua.DataTypeIDInt32},
		{iec.TypeLINT, ua.DataTypeIDInt64},
		{iec.TypeUSINT, ua.DataTypeIDByte},
		{iec.TypeUINT, ua.DataTypeIDUInt16},
		{iec.TypeUDINT, ua.DataTypeIDUInt32},
		{iec.TypeULINT, ua.DataTypeIDUInt64},
		{iec.TypeBYTE, ua.DataTypeIDByte},
		{iec.TypeWORD, ua.DataTypeIDUInt16},
		{iec.TypeDWORD, ua.DataTypeIDUInt32},
		{iec.TypeLWORD, ua.DataTypeIDUInt64},
		{iec.TypeDATE, ua.DataTypeIDDateTime},
		{iec.TypeTimeOfDay, ua.DataTypeIDDateTime},
		{iec.TypeDateAndTime, ua.DataTypeIDDateTime},
		{iec.TypeTIME, ua.DataTypeIDDouble},
		{iec.TypeREAL, ua.DataTypeIDFloat},
		{iec.TypeLREAL, ua.DataTypeIDDouble},
		{iec.TypeSTRING, ua.DataTypeIDString},
		{iec.TypeWSTRING, ua.DataTypeIDString},
	}
	for _, tc := range cases {
		got, err := DataTypeID(tc.typ)
		if err != nil {
			t.Fatalf("DataTypeID(%s) failed: %v", tc.typ, err)
		}
		if got != tc.want {
			t.Fatalf("DataTypeID(%s) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestTypeMapRejectsOutOfRangeCode(t *testing.T) {
	if _, err := DataTypeID(iec.TypeID(4711)); !errs.Is(err, errs.CodeTypeMismatch) {
		t.Fatalf("expected type_mismatch for out-of-range code, got %v", err)
	}
	if _, err := Variant(iec.Value{Type: iec.TypeID(4711), Data: 1}); !errs.Is(err, errs.CodeTypeMismatch) {
		t.Fatalf("expected type_mismatch for out-of-range variant, got %v", err)
	}
}

func TestVariantRejectsMismatchedRepresentation(t *testing.T) {
	// DINT declared but carrying a Go int.
	if _, err := Variant(iec.Value{Type: iec.TypeDINT, Data: 7}); !errs.Is(err, errs.CodeTypeMismatch) {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
}

func TestVariantEncodesTimeAsSeconds(t *testing.T) {
	got, err := Variant(iec.Value{Type: iec.TypeTIME, Data: 1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Variant(TIME) failed: %v", err)
	}
	if got != 1.5 {
		t.Fatalf("Variant(TIME) = %v, want 1.5", got)
	}
}

func TestReadBackDataPointAcceptsMatchingVariant(t *testing.T) {
	dst := iec.Value{Type: iec.TypeDINT}
	if err := ReadBackDataPoint(int32(7), &dst); err != nil {
		t.Fatalf("ReadBackDataPoint failed: %v", err)
	}
	if dst.Data != int32(7) {
		t.Fatalf("read back = %v, want int32(7)", dst.Data)
	}
}

func TestReadBackDataPointRejectsMismatch(t *testing.T) {
	dst := iec.Value{Type: iec.TypeBOOL}
	err := ReadBackDataPoint(int32(7), &dst)
	if !errs.Is(err, errs.CodeTypeMismatch) {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
	if dst.Data != nil {
		t.Fatalf("destination must stay untouched on mismatch, got %v", dst.Data)
	}
}

func TestReadBackDataPointDecodesTime(t *testing.T) {
	dst := iec.Value{Type: iec.TypeTIME}
	if err := ReadBackDataPoint(2.5, &dst); err != nil {
		t.Fatalf("ReadBackDataPoint(TIME) failed: %v", err)
	}
	if dst.Data != 2500*time.Millisecond {
		t.Fatalf("read back = %v, want 2.5s", dst.Data)
	}
}

func TestReadBackDataPointNilDestination(t *testing.T) {
	if err := ReadBackDataPoint(int32(7), nil); !errs.Is(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}
