//go:build unix && amd64

// Package jitexec executes a compiled routine's raw machine code
// directly, by mapping it executable and calling it with the custom
// register ABI spec.md §6 describes: x/y/t/c arrive in rax/rcx/r8/rsi
// (the routine zeroes and re-derives them itself), and the input/
// output base pointers arrive in rdx/rdi. This is what lets tests
// check the emitted bytes themselves rather than only the IR that
// produced them. Restricted to the x86-64 Unix targets the compiler
// itself emits for.
package jitexec

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Run maps code executable and calls it once against in and out. A
// single call walks the whole (t,y,x) iteration domain and writes
// every channel of every pixel, matching spec.md §4.6's loop
// structure: there is exactly one entry point per compiled routine.
func Run(code []byte, in, out []float32) error {
	if len(code) == 0 {
		return fmt.Errorf("jitexec: empty code buffer")
	}

	mem, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return fmt.Errorf("jitexec: mmap: %w", err)
	}
	defer unix.Munmap(mem)

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("jitexec: mprotect: %w", err)
	}

	var inPtr, outPtr unsafe.Pointer
	if len(in) > 0 {
		inPtr = unsafe.Pointer(&in[0])
	}
	if len(out) > 0 {
		outPtr = unsafe.Pointer(&out[0])
	}

	callRoutine(uintptr(unsafe.Pointer(&mem[0])), inPtr, outPtr)

	runtime.KeepAlive(mem)
	runtime.KeepAlive(in)
	runtime.KeepAlive(out)
	return nil
}
