// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pileup_test

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/varcall/pileup"
)

func TestASCIIToEnumTable(t *testing.T) {
	for i, c := range []byte("ACGTacgtNnX.") {
		want := []byte{
			pileup.BaseA, pileup.BaseC, pileup.BaseG, pileup.BaseT,
			pileup.BaseA, pileup.BaseC, pileup.BaseG, pileup.BaseT,
			pileup.BaseX, pileup.BaseX, pileup.BaseX, pileup.BaseX,
		}[i]
		expect.EQ(t, pileup.ASCIIToEnumTable[c], want, "char %c", c)
	}
	for b := byte(0); b < pileup.NBaseEnum; b++ {
		expect.EQ(t, pileup.ASCIIToEnumTable[pileup.EnumToASCIITable[b]], b)
	}
}

func TestGetStrand(t *testing.T) {
	for _, test := range []struct {
		flags   sam.Flags
		sameRef bool
		want    pileup.StrandType
	}{
		{0, false, pileup.StrandFwd},
		{sam.Reverse, false, pileup.StrandRev},
		{sam.Paired | sam.Read1 | sam.MateReverse, true, pileup.StrandFwd},
		{sam.Paired | sam.Read2 | sam.Reverse, true, pileup.StrandFwd},
		{sam.Paired | sam.Read1 | sam.Reverse, true, pileup.StrandRev},
		{sam.Paired | sam.Read2 | sam.MateReverse, true, pileup.StrandRev},
		{sam.Paired | sam.Read1 | sam.MateReverse, false, pileup.StrandNone},
		{sam.Paired | sam.Read1 | sam.Reverse | sam.MateReverse, true, pileup.StrandNone},
		{sam.Paired | sam.Read1 | sam.MateUnmapped, true, pileup.StrandFwd},
	} {
		expect.EQ(t, pileup.GetStrand(test.flags, test.sameRef), test.want, "flags %v", test.flags)
	}
}

func TestParseCols(t *testing.T) {
	colNameMap := map[string]int{"a": 1, "b": 2, "c": 4}
	for _, test := range []struct {
		param   string
		want    int
		wantErr bool
	}{
		{"", 3, false},
		{"c", 4, false},
		{"a,c", 5, false},
		{"+c,-a", 6, false},
		{"a,+c", 0, true},
		{"+c,a", 0, true},
		{"d", 0, true},
		{",a", 0, true},
		{"a,", 0, true},
	} {
		got, err := pileup.ParseCols(test.param, colNameMap, 3)
		if test.wantErr {
			expect.NotNil(t, err, test.param)
			continue
		}
		expect.NoError(t, err, test.param)
		expect.EQ(t, got, test.want, test.param)
	}
}
