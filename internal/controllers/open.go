package controllers

import "github.com/san-kum/velctl/internal/velocity"

// Open is feed-forward only: the target speed is normalized through the
// mapper and the measurement is ignored.
type Open struct {
	mapper velocity.Mapper
	last   float64
}

func NewOpen(m velocity.Mapper) *Open {
	return &Open{mapper: m}
}

func (o *Open) Name() string { return "open" }

func (o *Open) Update(_ float64, _, target velocity.Sample) float64 {
	if !target.OK {
		return o.last
	}
	o.last = o.mapper.Normalize(target.Value)
	return o.last
}

func (o *Open) Reset() { o.last = 0 }
