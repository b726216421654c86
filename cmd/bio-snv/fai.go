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
package main

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// faiRow is a single row of a samtools-style FASTA index.
type faiRow struct {
	Name      string
	Length    int64
	Offset    int64
	LineBases int64
	LineWidth int64
}

// parseFai returns the sequence lengths listed in a FASTA index.
func parseFai(r io.Reader) (map[string]int64, error) {
	tsvReader := tsv.NewReader(r)
	lengths := make(map[string]int64)
	for {
		var row faiRow
		if err := tsvReader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if row.Length <= 0 {
			return nil, errors.Errorf("invalid length %d for sequence %s", row.Length, row.Name)
		}
		if _, ok := lengths[row.Name]; ok {
			return nil, errors.Errorf("duplicate sequence name %s", row.Name)
		}
		lengths[row.Name] = row.Length
	}
	return lengths, nil
}

func readFaiLengths(ctx context.Context, path string) (lengths map[string]int64, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)
	if lengths, err = parseFai(f.Reader(ctx)); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return lengths, nil
}
