//go:build unix && amd64

package jitexec

import "unsafe"

// callRoutine bridges Go's calling convention to the compiled
// routine's: fn is called with rax/rcx/r8/rsi zeroed and rdx/rdi
// loaded from inPtr/outPtr, per spec.md §6. Implemented in
// trampoline_amd64.s.
func callRoutine(fn uintptr, inPtr, outPtr unsafe.Pointer)
