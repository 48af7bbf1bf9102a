/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package window

import (
	"fmt"

	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

// Windower assigns timestamped quads to window instances and reports their content.
type Windower interface {
	// Name returns the name of the window declaration
	Name() string
	// Width returns the duration of every instance
	Width() int64
	// Slide returns the offset between successive instances
	Slide() int64
	// Add routes the quad to the instances covering timestamp and reports eligible instances
	Add(quad rdf.Quad, timestamp int64)
	// AddBatch adds every quad of the container at the container's timestamp
	AddBatch(c *Container)
	// Scope materializes the instances that could contain timestamp
	Scope(timestamp int64)
	// ContentAt returns the content of the active instance containing timestamp with the smallest close
	ContentAt(timestamp int64) (*Container, bool)
	// Subscribe registers a callback for the given stream type
	Subscribe(st StreamType, cb Callback)
	// ActiveWindowCount returns the number of active instances
	ActiveWindowCount() int
	// ActiveWindowRanges returns the active instances ordered by close
	ActiveWindowRanges() []Instance
}

// Instance is one materialized window, the half open interval [Open, Close).
// Equality is by interval only, so Instance can be used as a map key.
type Instance struct {
	Open  int64
	Close int64
}

// NewInstance returns the window [open, close).
func NewInstance(open, close int64) Instance {
	return Instance{Open: open, Close: close}
}

// Contains reports whether timestamp falls in [Open, Close).
func (w Instance) Contains(timestamp int64) bool {
	return w.Open <= timestamp && timestamp < w.Close
}

// Width returns Close - Open.
func (w Instance) Width() int64 {
	return w.Close - w.Open
}

func (w Instance) String() string {
	return fmt.Sprintf("[%d,%d)", w.Open, w.Close)
}

// Callback receives the content of an instance when it is emitted. Every callback
// gets its own copy of the content.
type Callback func(w Instance, content *Container)

// ReportPolicy decides whether an active instance is eligible to emit its content.
type ReportPolicy int

const (
	// OnWindowClose reports an instance once an event beyond its close arrives.
	OnWindowClose ReportPolicy = iota
	// NonEmptyContent reports every instance that holds at least one quad.
	NonEmptyContent
	// OnContentChange reports instances whose content differs from the last emitted content.
	OnContentChange
	// Periodic reports every active instance once per period of event time.
	Periodic
)

func (r ReportPolicy) String() string {
	switch r {
	case OnWindowClose:
		return "OnWindowClose"
	case NonEmptyContent:
		return "NonEmptyContent"
	case OnContentChange:
		return "OnContentChange"
	case Periodic:
		return "Periodic"
	default:
		return "Unknown"
	}
}

// ParseReportPolicy parses the String form of a ReportPolicy.
func ParseReportPolicy(s string) (ReportPolicy, error) {
	for _, r := range []ReportPolicy{OnWindowClose, NonEmptyContent, OnContentChange, Periodic} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown report policy %q", s)
}

// Tick decides whether eligible reports are delivered.
type Tick int

const (
	// TimeDriven delivers only when the event time moved past the last delivery.
	TimeDriven Tick = iota
	// TupleDriven delivers on every added quad.
	TupleDriven
	// BatchDriven delivers once at the end of every batch.
	BatchDriven
)

func (t Tick) String() string {
	switch t {
	case TimeDriven:
		return "TimeDriven"
	case TupleDriven:
		return "TupleDriven"
	case BatchDriven:
		return "BatchDriven"
	default:
		return "Unknown"
	}
}

// ParseTick parses the String form of a Tick.
func ParseTick(s string) (Tick, error) {
	for _, t := range []Tick{TimeDriven, TupleDriven, BatchDriven} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tick %q", s)
}

// StreamType is the kind of output stream a subscriber listens to.
// Only RStream is driven by the windowers; IStream and DStream are extension points.
type StreamType int

const (
	RStream StreamType = iota
	IStream
	DStream
)

func (s StreamType) String() string {
	switch s {
	case RStream:
		return "RStream"
	case IStream:
		return "IStream"
	case DStream:
		return "DStream"
	default:
		return "Unknown"
	}
}
