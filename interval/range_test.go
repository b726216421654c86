package interval

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region  string
		refName string
		start0  PosType
		end     PosType
	}{
		{
			"chr1:1-1000",
			"chr1",
			0,
			1000,
		},
		{
			"chr1:1000",
			"chr1",
			999,
			1000,
		},
		{
			"chr1:5-5",
			"chr1",
			4,
			5,
		},
		{
			"chr1",
			"chr1",
			0,
			math.MaxInt32 - 1,
		},
	}

	for _, tt := range tests {
		result, err := ParseRegionString(tt.region)
		expect.NoError(t, err)
		expect.EQ(t, result.RefName, tt.refName)
		expect.EQ(t, result.Start0, tt.start0)
		expect.EQ(t, result.End, tt.end)
	}
}

func TestParseRegionStringErrors(t *testing.T) {
	for _, region := range []string{
		"",
		":1-5",
		"chr1:0",
		"chr1:0-5",
		"chr1:10-5",
		"chr1:x-5",
		"chr1:1-y",
	} {
		_, err := ParseRegionString(region)
		expect.True(t, err != nil, "region %q", region)
	}
}

func TestRange(t *testing.T) {
	r := Range{Start: 10, End: 20}
	expect.False(t, r.Empty())
	expect.EQ(t, r.Len(), 10)
	expect.True(t, r.Contains(10))
	expect.True(t, r.Contains(19))
	expect.False(t, r.Contains(20))
	expect.False(t, r.Contains(9))

	expect.EQ(t, r.Intersect(Range{Start: 15, End: 100}), Range{Start: 15, End: 20})
	expect.EQ(t, r.Intersect(Range{Start: 0, End: 12}), Range{Start: 10, End: 12})
	expect.True(t, r.Intersect(Range{Start: 30, End: 40}).Empty())
	expect.EQ(t, r.Intersect(Range{Start: 30, End: 40}).Len(), 0)

	var zero Range
	expect.True(t, zero.Empty())
	expect.EQ(t, r.String(), "[10, 20)")

	e := Entry{RefName: "chr2", Start0: 3, End: 7}
	expect.EQ(t, e.Range(), Range{Start: 3, End: 7})
}
