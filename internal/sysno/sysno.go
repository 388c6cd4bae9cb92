// Package sysno names the Linux riscv64 syscall numbers spec.md §6.3
// requires this kernel to accept in a7, grounded on the original
// source kernel's SYS_* constants (kernel/src/syscall/mod.rs) which
// themselves are the standard Linux riscv64 numbering.
package sysno

const (
	Getcwd      = 17
	Unlinkat    = 35
	Mkdirat     = 34
	Chdir       = 49
	Openat      = 56
	Close       = 57
	Pipe2       = 59
	Getdents64  = 61
	Read        = 63
	Write       = 64
	Fstat       = 80
	Exit        = 93
	ExitGroup   = 94
	SchedYield  = 124
	Wait4       = 260
	Kill        = 129
	Getppid     = 173
	Getpid      = 172
	Brk         = 214
	Munmap      = 215
	Clone       = 220
	Execve      = 221
	Mmap        = 222
	Mount       = 40
	Umount2     = 39
	Dup         = 23
	Dup3        = 24
	Newfstatat  = 79
	Uname       = 160
)
