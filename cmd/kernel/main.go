// Command kernel is this kernel's Go-level entry point: the part of
// the boot path expressible in portable Go, grounded on the teacher's
// own split between Go bring-up code and the assembly entry/trap
// vectors that call into it. Those vectors — and the SBI firmware and
// VirtIO block driver they sit on top of — are explicitly out of scope
// (spec.md §1); this binary supplies a hosted stand-in for both so the
// kernel above it (boot, task, vm, sys, vfs) runs against something
// real rather than nothing: a stdio-backed SBI console and a disk
// image opened as a plain host file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"riscvkern/internal/blockdev"
	"riscvkern/internal/boot"
	"riscvkern/internal/console"
	"riscvkern/internal/sbi"
)

// hostedSBI stands in for OpenSBI under the hosted simulator: console
// I/O goes to this process's stdio, the timer is unused (the scheduler
// is cooperative, per spec.md §5 — no core path needs set_timer), and
// shutdown exits the process instead of powering off real hardware.
type hostedSBI struct{}

func (hostedSBI) Putc(b byte) { os.Stdout.Write([]byte{b}) }

func (hostedSBI) GetChar() int {
	var b [1]byte
	n, err := os.Stdin.Read(b[:])
	if n == 0 || err != nil {
		return -1
	}
	return int(b[0])
}

func (hostedSBI) SetTimer(absoluteTicks uint64) {}

func (hostedSBI) Shutdown() { os.Exit(0) }

func main() {
	diskPath := flag.String("disk", "", "path to a sector-aligned disk image (VirtIO boot device)")
	initPath := flag.String("init", "", "path to the pid-1 ELF image")
	flag.Parse()

	if *diskPath == "" || *initPath == "" {
		fmt.Fprintln(os.Stderr, "usage: kernel -disk <image> -init <elf>")
		os.Exit(2)
	}

	sbi.Init(hostedSBI{})

	disk, err := blockdev.OpenFileDevice(*diskPath)
	if err != nil {
		log.Fatalf("kernel: opening disk image: %v", err)
	}
	defer disk.Close()

	initImage, err := os.ReadFile(*initPath)
	if err != nil {
		log.Fatalf("kernel: reading init image: %v", err)
	}

	k, err := boot.Boot(disk, initImage)
	if err != nil {
		log.Fatalf("kernel: boot failed: %v", err)
	}
	if k.MountedIdx >= 0 {
		console.Printf("mounted boot partition %d at /mnt\n", k.MountedIdx)
	} else {
		console.Printf("no recognized boot partition; root is ramfs-only\n")
	}
	console.Printf("spawned init as pid %d\n", k.Init.Pid)

	// The cooperative scheduler (spec.md §5) is driven by traps: a
	// task runs until an ecall or page fault returns control to the
	// kernel, at which point internal/trap.Dispatcher.Handle and
	// internal/sys.Kernel.Dispatch take over. That trap entry is the
	// arch-specific vector this repository excludes along with SBI and
	// the VirtIO driver, so there is nothing further for this Go
	// binary to loop on — it waits for an operator shutdown signal.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
	console.Printf("shutting down\n")
	sbi.Shutdown()
}
