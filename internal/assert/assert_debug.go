// Copyright 2025 The Secure Partition Monitor authors. All Rights Reserved.
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

//go:build debug
// +build debug

// Package assert holds invariant checks which are compiled in only on debug
// builds. They guard conditions that a correctly built firmware image cannot
// violate; trust-boundary checks on platform-supplied input do not belong
// here and are always-on error paths instead.
package assert

import (
	"fmt"
)

// Assert halts on a violated build-time invariant.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// Aligned halts unless v is a multiple of align.
func Aligned(v uint64, align uint64, what string) {
	if align == 0 || v&(align-1) != 0 {
		panic(fmt.Sprintf("%s %#x not aligned to %#x", what, v, align))
	}
}
