// Package sbi declares the Supervisor Binary Interface the kernel
// consumes. SBI itself lives below the kernel (firmware/OpenSBI) and is
// explicitly out of this repository's scope (spec.md §1) — only the
// interface the kernel calls through is stated here, grounded on
// spec.md §6.1 and the extension/function-ID layout used by
// tinyrange-cc's rv64 SBI handler in the retrieval pack.
package sbi

// Provider is the collaborator the boot sequence wires up: firmware
// (OpenSBI) in a real build, a fake in tests.
type Provider interface {
	// Putc writes one byte to the console.
	Putc(b byte)
	// GetChar returns -1 if no character is waiting, else the byte.
	GetChar() int
	// SetTimer schedules the next timer interrupt at absoluteTicks.
	SetTimer(absoluteTicks uint64)
	// Shutdown powers the machine off and does not return.
	Shutdown()
}

var current Provider

// Init installs the SBI provider used by the rest of the kernel.
func Init(p Provider) { current = p }

func Putc(b byte)                    { current.Putc(b) }
func GetChar() int                   { return current.GetChar() }
func SetTimer(absoluteTicks uint64)  { current.SetTimer(absoluteTicks) }
func Shutdown()                      { current.Shutdown() }
