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

package engine

import "errors"

var (
	// ErrStreamNotFound is returned when no window of the query reads the named stream.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrEngineClosed is returned to producers once the engine is closed.
	ErrEngineClosed       = errors.New("engine is closed")
	ErrNotInitialized     = errors.New("engine is not initialized")
	ErrAlreadyInitialized = errors.New("engine is already initialized")
	ErrAlreadyStarted     = errors.New("engine processing already started")
)

// EvaluationError wraps an evaluator failure for one window emission.
type EvaluationError struct {
	Window string
	From   int64
	To     int64
	Err    error
}

func (e *EvaluationError) Error() string {
	return "evaluating window " + e.Window + ": " + e.Err.Error()
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
