package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nopia/internal/ir"
)

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		in   string
		want ir.TypeRef
	}{
		{"int", ir.TypeRef{Name: "int"}},
		{"Interop:Ns.IFoo", ir.TypeRef{Module: "Interop", Name: "Ns.IFoo"}},
		{"~Other:IFoo", ir.TypeRef{Module: "Other", Name: "IFoo", Local: true}},
		{"List<~B:ITest33>", ir.TypeRef{Name: "List", Args: []ir.TypeRef{{Module: "B", Name: "ITest33", Local: true}}}},
		{"Dictionary<string, A:List<int>>", ir.TypeRef{Name: "Dictionary", Args: []ir.TypeRef{
			{Name: "string"},
			{Module: "A", Name: "List", Args: []ir.TypeRef{{Name: "int"}}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTypeRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTypeRefErrors(t *testing.T) {
	for _, in := range []string{"", "A:", "~IFoo", "List<int", "List<int>>", "List<int string>", "A:B:C"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTypeRef(in)
			assert.Error(t, err)
		})
	}
}

func TestFormatTypeRefRoundTrip(t *testing.T) {
	for _, in := range []string{"int", "A:Ns.I", "~B:I", "List<~B:ITest33>", "Map<string, A:S>"} {
		ref, err := ParseTypeRef(in)
		require.NoError(t, err)
		assert.Equal(t, in, FormatTypeRef(ref))
	}
}
