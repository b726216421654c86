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
package snv

import (
	"fmt"
	"io"
	"sync"
)

// ReadCounts tallies evidence-filter decisions.  Counts[DecisionUsed] is the
// used-read count.
type ReadCounts struct {
	Counts [nDecision]uint64
}

// AddAll records every decision in ds.
func (c *ReadCounts) AddAll(ds []FilterDecision) {
	for _, d := range ds {
		c.Counts[d]++
	}
}

// Merge adds other's tallies to c.
func (c *ReadCounts) Merge(other *ReadCounts) {
	for i, n := range other.Counts {
		c.Counts[i] += n
	}
}

// Get returns the tally for d.
func (c *ReadCounts) Get(d FilterDecision) uint64 {
	return c.Counts[d]
}

// Used returns the number of evidence records which passed every filter.
func (c *ReadCounts) Used() uint64 {
	return c.Counts[DecisionUsed]
}

// Total returns the number of evidence records seen.
func (c *ReadCounts) Total() uint64 {
	var total uint64
	for _, n := range c.Counts {
		total += n
	}
	return total
}

// Report writes one "name<TAB>count" line per decision, filter categories
// first and the used count last.
func (c *ReadCounts) Report(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "READ_COUNTS\ttotal\t%d\n", c.Total()); err != nil {
		return err
	}
	for d := FilterDecision(0); d < nDecision; d++ {
		if d == DecisionUsed {
			continue
		}
		if _, err := fmt.Fprintf(w, "READ_COUNTS\t%s\t%d\n", d, c.Counts[d]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "READ_COUNTS\t%s\t%d\n", DecisionUsed, c.Counts[DecisionUsed])
	return err
}

// Counter is a ReadCounts which can be merged into from multiple goroutines.
// Workers are expected to accumulate into a local ReadCounts and Merge() it
// once, so the mutex is the single serialization point.
type Counter struct {
	mu     sync.Mutex
	counts ReadCounts
}

// Merge adds local's tallies to the counter.
func (c *Counter) Merge(local *ReadCounts) {
	c.mu.Lock()
	c.counts.Merge(local)
	c.mu.Unlock()
}

// Summarize returns a snapshot of the current tallies.
func (c *Counter) Summarize() ReadCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}
