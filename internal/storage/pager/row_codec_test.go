package pager

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRowCodecRoundTrip(t *testing.T) {
	types := []ColType{ColInt, ColBool, ColText}
	rows := [][]Value{
		{IntValue(42), BoolValue(true), TextValue("hello")},
		{NullValue(ColInt), NullValue(ColBool), NullValue(ColText)},
		{IntValue(-7), BoolValue(false), TextValue("")},
	}
	for _, row := range rows {
		buf := MarshalRow(row)
		got, err := UnmarshalRow(buf, types)
		require.NoError(t, err)
		require.Equal(t, row, got)
	}
}

func TestRowCodecRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		types := make([]ColType, n)
		row := make([]Value, n)
		for i := 0; i < n; i++ {
			kind := ColType(rapid.IntRange(0, 2).Draw(rt, "kind"))
			types[i] = kind
			if rapid.Bool().Draw(rt, "null") {
				row[i] = NullValue(kind)
				continue
			}
			switch kind {
			case ColInt:
				row[i] = IntValue(rapid.Int64().Draw(rt, "i"))
			case ColBool:
				row[i] = BoolValue(rapid.Bool().Draw(rt, "b"))
			default:
				row[i] = TextValue(rapid.String().Draw(rt, "s"))
			}
		}
		buf := MarshalRow(row)
		got, err := UnmarshalRow(buf, types)
		require.NoError(rt, err)
		require.Equal(rt, row, got)
	})
}
