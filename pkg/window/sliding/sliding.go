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

// Package sliding implements event time sliding windows over quads. Sliding windows are defined by a
// width and a "slide", the duration by which the boundaries of successive windows move. A tumbling
// window is a sliding window whose slide equals its width.
// Package sliding also maintains the state of active windows. Windows are opened lazily from event
// timestamps and closed by later event timestamps, there are no wall clock timers.
package sliding

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/rdf"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/window"
)

var (
	ErrInvalidWidth = errors.New("window width must be positive")
	ErrInvalidSlide = errors.New("window slide must be positive")
)

// Sliding implements sliding windows
type Sliding struct {
	name  string
	width int64
	slide int64
	opts  *options

	// mu serializes every mutation. Subscribers run while it is held and must not call back into the windower.
	mu sync.RWMutex
	// anchor is the timestamp of the first event, or the configured start time
	anchor   int64
	anchored bool
	// time is the timestamp of the last delivery, it never decreases
	time int64
	// lastPeriodic is the timestamp of the last Periodic report
	lastPeriodic int64
	// lastFingerprint is the fingerprint of the last emitted content, used by OnContentChange
	lastFingerprint uint64
	// entries is the list of active windows sorted by close, the head closes first
	entries     *window.SortedWindowList
	subscribers map[window.StreamType][]window.Callback
	log         *zap.SugaredLogger
}

var _ window.Windower = (*Sliding)(nil)

// NewSliding returns a Sliding windower
func NewSliding(name string, width int64, slide int64, opts ...Option) (*Sliding, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	if slide <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlide, slide)
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.period == 0 {
		o.period = slide
	}
	if o.logger == nil {
		o.logger = logging.NewNopLogger()
	}

	s := &Sliding{
		name:        name,
		width:       width,
		slide:       slide,
		opts:        o,
		time:        math.MinInt64,
		entries:     window.NewSortedWindowList(),
		subscribers: make(map[window.StreamType][]window.Callback),
		log:         o.logger.With("window", name),
	}
	if o.hasStartTime {
		s.anchor, s.anchored = o.startTime, true
		s.time = o.startTime
		s.lastPeriodic = o.startTime
	}
	activeWindows.WithLabelValues(name).Set(0)
	return s, nil
}

func (s *Sliding) Name() string {
	return s.name
}

func (s *Sliding) Width() int64 {
	return s.width
}

func (s *Sliding) Slide() int64 {
	return s.slide
}

// Time returns the timestamp of the last delivery, math.MinInt64 before the first one.
func (s *Sliding) Time() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// Anchor returns the anchor timestamp, the boolean is false until an event arrived or a start time was set.
// Windows sit on the absolute slide grid whatever the anchor is.
func (s *Sliding) Anchor() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anchor, s.anchored
}

// Subscribe registers a callback, callbacks run synchronously in registration order.
func (s *Sliding) Subscribe(st window.StreamType, cb window.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[st] = append(s.subscribers[st], cb)
}

// Add routes the quad to every window covering timestamp, then reports and evicts eligible windows.
// Under BatchDriven a single Add is a batch of one.
func (s *Sliding) Add(q rdf.Quad, timestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(q, timestamp)
	s.report(timestamp)
}

// AddBatch adds every quad of c at c.LastTimestamp(). Under BatchDriven the windows report once after
// the whole batch, otherwise after every quad. An empty batch only advances the clock, windows closed
// by its timestamp report without any new content being routed.
func (s *Sliding) AddBatch(c *window.Container) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timestamp := c.LastTimestamp()
	if c.IsEmpty() {
		s.observe(timestamp)
		s.report(timestamp)
		return
	}
	if s.opts.tick == window.BatchDriven {
		c.Range(func(q rdf.Quad) {
			s.add(q, timestamp)
		})
		s.report(timestamp)
		return
	}
	// per-quad reports depend on arrival order, keep it lexical
	for _, q := range c.Quads() {
		s.add(q, timestamp)
		s.report(timestamp)
	}
}

// Scope materializes every window which could contain timestamp.
func (s *Sliding) Scope(timestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(timestamp)
}

// ContentAt returns a copy of the content of the active window containing timestamp with the smallest close.
func (s *Sliding) ContentAt(timestamp int64) (*window.Container, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	aw, ok := s.entries.FindWindowForTime(timestamp)
	if !ok {
		return nil, false
	}
	return aw.Content().Clone(), true
}

func (s *Sliding) ActiveWindowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// ActiveWindowRanges returns the active windows ordered by close.
func (s *Sliding) ActiveWindowRanges() []window.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ranges := make([]window.Instance, 0, s.entries.Len())
	for _, aw := range s.entries.Items() {
		ranges = append(ranges, aw.Instance)
	}
	return ranges
}

// observe records the anchor and flags out of order timestamps.
func (s *Sliding) observe(timestamp int64) {
	if !s.anchored {
		s.anchor, s.anchored = timestamp, true
		s.lastPeriodic = timestamp
	}
	if timestamp < s.time {
		outOfOrderFacts.WithLabelValues(s.name).Inc()
		s.log.Warnw("Received out of order fact", zap.Int64("timestamp", timestamp), zap.Int64("time", s.time))
	}
}

func (s *Sliding) add(q rdf.Quad, timestamp int64) {
	s.observe(timestamp)
	s.scope(timestamp)

	routed := false
	for _, aw := range s.entries.Items() {
		if aw.Contains(timestamp) {
			aw.Content().Add(q, timestamp)
			routed = true
		}
	}
	if !routed {
		lateDroppedFacts.WithLabelValues(s.name).Inc()
		s.log.Debugw("No active window accepts the fact", zap.Int64("timestamp", timestamp), zap.Int64("time", s.time))
	}
}

// scope walks the slide grid. Closes are multiples of slide, the first candidate closes at the
// smallest multiple of slide not below timestamp. The anchor plays no part in placement.
func (s *Sliding) scope(timestamp int64) {
	cSup := ceilDiv(timestamp, s.slide) * s.slide
	for o := cSup - s.width; o <= timestamp; o += s.slide {
		w := window.NewInstance(o, o+s.width)
		// a window closing before the last delivery has already reported
		if w.Close < s.time {
			continue
		}
		if _, present := s.entries.InsertIfNotPresent(w); !present {
			s.log.Debugw("Opened window", zap.Stringer("instance", w))
		}
	}
	activeWindows.WithLabelValues(s.name).Set(float64(s.entries.Len()))
}

// report collects the eligible windows in increasing close order, emits every one of them and evicts
// them. When the tick policy holds delivery back the eligible windows stay active.
func (s *Sliding) report(timestamp int64) {
	var eligible []*window.ActiveWindow
	periodic := s.opts.reportPolicy == window.Periodic && timestamp-s.lastPeriodic >= s.opts.period
	for _, aw := range s.entries.Items() {
		if s.isEligible(aw, timestamp, periodic) {
			eligible = append(eligible, aw)
		}
	}
	if len(eligible) == 0 {
		return
	}
	if s.opts.tick == window.TimeDriven && timestamp <= s.time {
		return
	}

	if timestamp > s.time {
		s.time = timestamp
	}
	if periodic {
		s.lastPeriodic = timestamp
	}
	for _, aw := range eligible {
		s.emit(aw)
		aw.MarkTriggered()
		s.entries.Delete(aw.Instance)
		evictedWindows.WithLabelValues(s.name).Inc()
		s.log.Debugw("Evicted window", zap.Stringer("instance", aw.Instance))
	}
	activeWindows.WithLabelValues(s.name).Set(float64(s.entries.Len()))
}

func (s *Sliding) isEligible(aw *window.ActiveWindow, timestamp int64, periodic bool) bool {
	switch s.opts.reportPolicy {
	case window.OnWindowClose:
		return aw.Close < timestamp
	case window.NonEmptyContent:
		return !aw.Content().IsEmpty()
	case window.OnContentChange:
		return !aw.Content().IsEmpty() && aw.Content().Fingerprint() != s.lastFingerprint
	case window.Periodic:
		return periodic
	default:
		return false
	}
}

func (s *Sliding) emit(aw *window.ActiveWindow) {
	s.lastFingerprint = aw.Content().Fingerprint()
	emittedWindows.WithLabelValues(s.name).Inc()
	s.log.Debugw("Emitting window", zap.Stringer("instance", aw.Instance), zap.Int("size", aw.Content().Len()))
	for _, cb := range s.subscribers[window.RStream] {
		cb(aw.Instance, aw.Content().Clone())
	}
}

// ceilDiv returns the smallest integer not below a/b, b must be positive.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}
