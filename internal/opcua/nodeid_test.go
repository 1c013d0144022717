package opcua

import (
	"testing"

	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"

	"github.com/fbflow/fbflow/errs"
)

func TestParseNodeIDVariants(t *testing.T) {
	guid := uuid.MustParse("72962b91-fa75-4ae6-8d28-b404dc7daf63")
	cases := []struct {
		in   string
		want ua.NodeID
	}{
		{"2:string:Q", ua.NodeIDString{NamespaceIndex: 2, ID: "Q"}},
		{"1:numeric:42", ua.NodeIDNumeric{NamespaceIndex: 1, ID: 42}},
		{"3:guid:72962b91-fa75-4ae6-8d28-b404dc7daf63", ua.NodeIDGUID{NamespaceIndex: 3, ID: guid}},
		{"0:bytestring:payload", ua.NodeIDOpaque{NamespaceIndex: 0, ID: ua.ByteString("payload")}},
		{" 2:STRING:Q", ua.NodeIDString{NamespaceIndex: 2, ID: "Q"}},
	}
	for _, tc := range cases {
		got, err := ParseNodeID(tc.in)
		if err != nil {
			t.Fatalf("ParseNodeID(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseNodeID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseNodeIDErrors(t *testing.T) {
	cases := []string{
		"",
		"just-a-name",
		"2:string",
		"x:string:Q",
		"70000:string:Q",
		"2:numeric:notanumber",
		"2:guid:nope",
		"2:mystery:Q",
	}
	for _, in := range cases {
		if _, err := ParseNodeID(in); !errs.Is(err, errs.CodeInvalid) {
			t.Fatalf("ParseNodeID(%q): expected invalid_request, got %v", in, err)
		}
	}
}
