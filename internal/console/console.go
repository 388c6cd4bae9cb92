// Package console provides the kernel's only log sink: an io.Writer
// wrapping the SBI putc collaborator. Grounded on the teacher's
// unadorned fmt.Printf call sites (mem/mem.go, fs/blk.go) — the kernel
// never reaches for a structured logging library, it just writes bytes
// to the console device.
package console

import (
	"fmt"
	"sync"

	"riscvkern/internal/sbi"
)

// Writer serializes console writes; multiple subsystems may log from
// re-entrant syscall/trap contexts.
type Writer struct {
	mu sync.Mutex
}

var Out = &Writer{}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		sbi.Putc(b)
	}
	return len(p), nil
}

// Printf writes a formatted line to the console.
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(Out, format, args...)
}

// Debug gates a subsystem's verbose logging, mirroring biscuit's
// package-level bdev_debug booleans.
type Debug bool

func (d Debug) Printf(format string, args ...interface{}) {
	if d {
		Printf(format, args...)
	}
}
