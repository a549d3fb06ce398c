// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serrors

import (
	"runtime"
	"strconv"

	"go.uber.org/zap/zapcore"
)

// Frame is a program counter inside a stack frame.
type Frame uintptr

// MarshalText renders the frame as "function file:line".
func (f Frame) MarshalText() ([]byte, error) {
	frame, _ := runtime.CallersFrames([]uintptr{uintptr(f)}).Next()
	if frame.Function == "" {
		return []byte("unknown"), nil
	}
	return []byte(frame.Function + " " + frame.File + ":" + strconv.Itoa(frame.Line)), nil
}

// StackTrace is a stack of frames from the innermost to the outermost call.
type StackTrace []Frame

type stack []uintptr

func (s *stack) StackTrace() StackTrace {
	st := make(StackTrace, len(*s))
	for i, pc := range *s {
		st[i] = Frame(pc)
	}
	return st
}

func (s *stack) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, f := range s.StackTrace() {
		t, err := f.MarshalText()
		if err != nil {
			return err
		}
		enc.AppendByteString(t)
	}
	return nil
}

func callers() *stack {
	var pcs [32]uintptr
	// Skip runtime.Callers, callers, newDetails and the exported constructor.
	n := runtime.Callers(4, pcs[:])
	st := stack(pcs[:n])
	return &st
}
