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
	"sort"
)

// ActiveWindow is an instance which is currently tracked together with its content.
type ActiveWindow struct {
	Instance
	content   *Container
	triggered bool
}

// Content returns the live content of the window.
func (a *ActiveWindow) Content() *Container {
	return a.content
}

// Triggered reports whether the window has been emitted. Nothing in the lifecycle depends on it,
// windows are evicted right after they report.
func (a *ActiveWindow) Triggered() bool {
	return a.triggered
}

// MarkTriggered records that the window has been emitted.
func (a *ActiveWindow) MarkTriggered() {
	a.triggered = true
}

// SortedWindowList is a list of active windows sorted by close time, then open time,
// from lowest to highest. The Front/Head of the list is the window which closes first.
// SortedWindowList is not thread safe, the windower owning it serializes access.
type SortedWindowList struct {
	windows []*ActiveWindow
	index   map[Instance]*ActiveWindow
}

// NewSortedWindowList returns an empty list.
func NewSortedWindowList() *SortedWindowList {
	return &SortedWindowList{
		windows: make([]*ActiveWindow, 0),
		index:   make(map[Instance]*ActiveWindow),
	}
}

func (s *SortedWindowList) less(a, b Instance) bool {
	if a.Close != b.Close {
		return a.Close < b.Close
	}
	return a.Open < b.Open
}

// InsertIfNotPresent inserts a window with empty content if not present and returns it.
// The boolean is true when the window was already present.
func (s *SortedWindowList) InsertIfNotPresent(w Instance) (*ActiveWindow, bool) {
	if existing, ok := s.index[w]; ok {
		return existing, true
	}

	aw := &ActiveWindow{Instance: w, content: NewContainer(nil, 0)}
	index := sort.Search(len(s.windows), func(i int) bool {
		return !s.less(s.windows[i].Instance, w)
	})

	// most windows are created at the tail, append is the common case
	s.windows = append(s.windows, aw)
	copy(s.windows[index+1:], s.windows[index:])
	s.windows[index] = aw
	s.index[w] = aw
	return aw, false
}

// Get returns the active window for the interval.
func (s *SortedWindowList) Get(w Instance) (*ActiveWindow, bool) {
	aw, ok := s.index[w]
	return aw, ok
}

// Delete deletes a window from the list.
func (s *SortedWindowList) Delete(w Instance) (deleted bool) {
	if _, ok := s.index[w]; !ok {
		return false
	}
	delete(s.index, w)

	index := sort.Search(len(s.windows), func(i int) bool {
		return !s.less(s.windows[i].Instance, w)
	})
	if index < len(s.windows) && s.windows[index].Instance == w {
		s.windows = append(s.windows[:index], s.windows[index+1:]...)
		return true
	}
	return false
}

// Len returns the number of active windows.
func (s *SortedWindowList) Len() int {
	return len(s.windows)
}

// Front returns the window which closes first.
func (s *SortedWindowList) Front() (*ActiveWindow, bool) {
	if len(s.windows) == 0 {
		return nil, false
	}
	return s.windows[0], true
}

// Back returns the window which closes last.
func (s *SortedWindowList) Back() (*ActiveWindow, bool) {
	if len(s.windows) == 0 {
		return nil, false
	}
	return s.windows[len(s.windows)-1], true
}

// Items returns a copy of the list.
func (s *SortedWindowList) Items() []*ActiveWindow {
	items := make([]*ActiveWindow, len(s.windows))
	copy(items, s.windows)
	return items
}

// FindWindowForTime returns the window with the smallest close which contains t.
func (s *SortedWindowList) FindWindowForTime(t int64) (*ActiveWindow, bool) {
	// windows closing at or before t cannot contain it
	index := sort.Search(len(s.windows), func(i int) bool {
		return s.windows[i].Close > t
	})
	for i := index; i < len(s.windows); i++ {
		if s.windows[i].Contains(t) {
			return s.windows[i], true
		}
	}
	return nil, false
}
