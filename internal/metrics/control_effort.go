package metrics

import (
	"math"

	"github.com/san-kum/tanksim/internal/dynamo"
)

// ControlEffort is the mean absolute heater command over all control
// intervals.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
	started bool
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(s dynamo.Sample) {
	if !c.started {
		c.started = true
		return
	}
	c.sum += math.Abs(s.Command)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
	c.started = false
}
