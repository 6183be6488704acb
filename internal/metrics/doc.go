// Package metrics provides online [dynamo.Metric] implementations that
// summarise a run while it executes. Interval metrics treat the command of
// each sample as constant over the interval ending at that sample.
package metrics
