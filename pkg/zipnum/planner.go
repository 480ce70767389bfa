// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zipnum

import (
	"io"
	"math"
)

// planner merges a descriptor stream into fetch plans, greedily and in one pass.
type planner struct {
	src       DescriptorReader
	maxBlocks int
	cur       *FetchPlan
	stop      error
}

// NewPlanner returns the plans for src. A descriptor extends the current plan
// when it is in the same partition, starts exactly where the plan ends and the
// plan holds fewer than maxBlocks units; otherwise it starts a new plan.
func NewPlanner(src DescriptorReader, maxBlocks int) PlanReader {
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocksPerPlan
	}
	return &planner{src: src, maxBlocks: maxBlocks}
}

func (p *planner) Next() (FetchPlan, error) {
	for {
		if p.stop != nil {
			// Flush the plan in progress before reporting EOF or an upstream error.
			if p.cur != nil {
				out := *p.cur
				p.cur = nil
				return out, nil
			}
			return FetchPlan{}, p.stop
		}
		d, err := p.src.Next()
		if err != nil {
			p.stop = err
			continue
		}
		if p.cur == nil {
			p.cur = newPlan(d)
			continue
		}
		if p.canMerge(d) {
			p.cur.Length += d.Length
			p.cur.UnitLengths = append(p.cur.UnitLengths, d.Length)
			continue
		}
		out := *p.cur
		p.cur = newPlan(d)
		return out, nil
	}
}

func (p *planner) canMerge(d IndexDescriptor) bool {
	return p.cur.Partition == d.Partition &&
		p.cur.End() == d.Offset &&
		p.cur.Count() < p.maxBlocks &&
		p.cur.Length <= math.MaxInt64-d.Length
}

func (p *planner) Close() error {
	if p.stop == nil {
		p.stop = io.ErrClosedPipe
	}
	p.cur = nil
	return p.src.Close()
}
