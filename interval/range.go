package interval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PosType is the type used to represent interval coordinates.  int32 should be
// wide enough for some time to come, since that's what BAM is limited to.
type PosType int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// Range is a 0-based half-open interval [Start, End) on a single contig.
// The zero value is the empty range.
type Range struct {
	Start PosType
	End   PosType
}

// Empty returns true iff r contains no positions.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Len returns the number of positions in r.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains returns true iff pos is in [r.Start, r.End).
func (r Range) Contains(pos PosType) bool {
	return (pos >= r.Start) && (pos < r.End)
}

// Intersect returns the intersection of r and other.  The result is empty
// (though not necessarily the zero value) when they don't overlap.
func (r Range) Intersect(other Range) Range {
	result := r
	if other.Start > result.Start {
		result.Start = other.Start
	}
	if other.End < result.End {
		result.End = other.End
	}
	return result
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Entry represents a single interval on a named contig, with 0-based
// coordinates.
type Entry struct {
	RefName string
	Start0  PosType
	End     PosType
}

// Range returns the coordinates of e without the contig name.
func (e Entry) Range() Range {
	return Range{Start: e.Start0, End: e.End}
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, PosTypeMax - 1) is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.IndexByte(region, ':')
	if colonPos == -1 {
		result.RefName = region
		result.Start0 = 0
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.RefName = region[0:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	// end0 == PosTypeMax is prohibited so that End+1 never overflows.
	if end0 < start1 || end0 >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}
