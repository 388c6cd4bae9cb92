// Package kerr defines the error taxonomy returned across the kernel's
// internal boundaries. Errors never cross as Go error values: every
// fallible kernel function returns an Err_t, mirroring the teacher's
// defs.Err_t, so that a syscall body can translate a non-zero value
// straight into -1 without an intermediate conversion step.
package kerr

// Err_t is a positive error code, or 0 for success.
type Err_t int

const (
	EINVAL       Err_t = 1 // bad flags, unaligned offset, zero length where forbidden
	ENOENT       Err_t = 2 // path or fd not found
	EEXIST       Err_t = 3 // mkdir/mkfile over an existing name
	ENOTDIR      Err_t = 4 // expected a directory
	EISDIR       Err_t = 5 // expected a non-directory
	ENOSPC       Err_t = 6 // no free cluster/block/frame/quota
	EPIPE        Err_t = 7 // write to a pipe with no reader
	EPERM        Err_t = 8 // permission denied
	ENOTSUP      Err_t = 9 // operation not supported by this backend
	EBUSY        Err_t = 10 // resource is mounted or otherwise in use
	EBADF        Err_t = 11 // bad file descriptor
	EIO          Err_t = 12 // underlying device I/O failure
	EFAULT       Err_t = 13 // bad user pointer / unmapped access
	ENOMEM       Err_t = 14 // out of physical frames
	ENAMETOOLONG Err_t = 15
	ENOSYS       Err_t = 16 // unknown syscall number
	ESRCH        Err_t = 17 // no such task/child
	ECHILD       Err_t = 18 // wait() with no children
	ENOTOWNED    Err_t = 19 // munmap touching a non-mmap area
	ERANGE       Err_t = 20
	ENOEXEC      Err_t = 21 // malformed or unsupported executable image
	EAGAIN       Err_t = 22 // operation would block a non-blocking caller
	ENOTEMPTY    Err_t = 23 // rmdir/unlink on a non-empty directory
	EROFS        Err_t = 24 // write attempted on a read-only device/mount
)

var names = map[Err_t]string{
	EINVAL:       "EINVAL",
	ENOENT:       "ENOENT",
	EEXIST:       "EEXIST",
	ENOTDIR:      "ENOTDIR",
	EISDIR:       "EISDIR",
	ENOSPC:       "ENOSPC",
	EPIPE:        "EPIPE",
	EPERM:        "EPERM",
	ENOTSUP:      "ENOTSUP",
	EBUSY:        "EBUSY",
	EBADF:        "EBADF",
	EIO:          "EIO",
	EFAULT:       "EFAULT",
	ENOMEM:       "ENOMEM",
	ENAMETOOLONG: "ENAMETOOLONG",
	ENOSYS:       "ENOSYS",
	ESRCH:        "ESRCH",
	ECHILD:       "ECHILD",
	ENOTOWNED:    "ENOTOWNED",
	ERANGE:       "ERANGE",
	ENOEXEC:      "ENOEXEC",
	EAGAIN:       "EAGAIN",
	ENOTEMPTY:    "ENOTEMPTY",
	EROFS:        "EROFS",
}

func (e Err_t) String() string {
	if e == 0 {
		return "OK"
	}
	if n, ok := names[e]; ok {
		return n
	}
	return "EUNKNOWN"
}

// Rc converts an internal error into the -1/0/positive convention used
// for a syscall return value in a0.
func (e Err_t) Rc() int {
	if e != 0 {
		return -1
	}
	return 0
}
