// Package ramfs implements an in-memory filesystem backend, grounded
// on the teacher's fs.Fs_t (introspected through ufs.Ufs_t's Fs_open/
// Fs_mkdir/Fs_rename wrapper calls — the real Fs_t's source was not in
// the retrieval pack, so the operation shapes are inferred from its
// callers) but simplified to a pure in-memory inode tree, since ramfs
// has no block device to journal against.
package ramfs

import (
	"sort"
	"sync"
	"sync/atomic"

	"riscvkern/internal/kerr"
	"riscvkern/internal/kpath"
	"riscvkern/internal/kstat"
	"riscvkern/internal/vfs"
)

var inoCounter uint64

func nextIno() uint64 { return atomic.AddUint64(&inoCounter, 1) }

type inode struct {
	mu       sync.Mutex
	ino      uint64
	isDir    bool
	mode     uint32
	data     []byte
	children map[string]*inode
	mtime    int64

	// dev is set for a Device inode: an externally supplied File
	// surfaced into the namespace, per spec.md §4.9 (at boot, the
	// unmounted MBR partitions /vdaN).
	// open on a Device hands back dev directly rather than this node's
	// own byte vector.
	dev vfs.File
}

func newDir(mode uint32) *inode {
	return &inode{ino: nextIno(), isDir: true, mode: mode, children: make(map[string]*inode)}
}

func newFile(mode uint32) *inode {
	return &inode{ino: nextIno(), mode: mode}
}

// Fs is a ramfs instance: a single in-memory inode tree rooted at root.
type Fs struct {
	mu   sync.Mutex
	root *inode
}

// New returns an empty ramfs with just the root directory.
func New() *Fs {
	return &Fs{root: newDir(0o755)}
}

func (f *Fs) lookup(p kpath.Path) (*inode, *inode, string, kerr.Err_t) {
	parts := kpath.Split(p)
	cur := f.root
	var parent *inode
	var name string
	for i, part := range parts {
		cur.mu.Lock()
		next, ok := cur.children[part]
		isDir := cur.isDir
		cur.mu.Unlock()
		if !isDir {
			return nil, nil, "", kerr.ENOTDIR
		}
		if !ok {
			if i == len(parts)-1 {
				return nil, cur, part, kerr.ENOENT
			}
			return nil, nil, "", kerr.ENOENT
		}
		parent, name, cur = cur, part, next
	}
	return cur, parent, name, 0
}

// MountDevice installs dev as a Device inode at p, creating parent
// directories is not attempted — p's parent must already exist. Used
// at boot to surface the unmounted MBR partitions as /vdaN.
func (f *Fs) MountDevice(p kpath.Path, dev vfs.File) kerr.Err_t {
	_, parent, name, err := f.lookup(p)
	if err == 0 {
		return kerr.EEXIST
	}
	if err != kerr.ENOENT || parent == nil {
		return err
	}
	n := newFile(0o644)
	n.dev = dev
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if _, exists := parent.children[name]; exists {
		return kerr.EEXIST
	}
	parent.children[name] = n
	return 0
}

// Open implements vfs.VfsFs.
func (f *Fs) Open(p kpath.Path, flags int, mode uint32) (vfs.File, kerr.Err_t) {
	node, parent, name, err := f.lookup(p)
	if err == kerr.ENOENT && flags&vfs.OCreat != 0 {
		if parent == nil {
			return nil, kerr.ENOENT
		}
		node = newFile(mode)
		parent.mu.Lock()
		parent.children[name] = node
		parent.mu.Unlock()
		err = 0
	}
	if err != 0 {
		return nil, err
	}
	if node.dev != nil {
		if flags&vfs.OTrunc != 0 {
			return nil, kerr.EINVAL
		}
		return node.dev, 0
	}
	if node.isDir && flags&(vfs.OWronly|vfs.ORdwr) != 0 {
		return nil, kerr.EISDIR
	}
	if flags&vfs.OTrunc != 0 && !node.isDir {
		node.mu.Lock()
		node.data = nil
		node.mu.Unlock()
	}
	fh := &fileHandle{node: node, append: flags&vfs.OAppend != 0}
	if flags&vfs.OAppend != 0 {
		node.mu.Lock()
		fh.off = int64(len(node.data))
		node.mu.Unlock()
	}
	return fh, 0
}

// Mkdir implements vfs.VfsFs.
func (f *Fs) Mkdir(p kpath.Path, mode uint32) kerr.Err_t {
	_, parent, name, err := f.lookup(p)
	if err == 0 {
		return kerr.EEXIST
	}
	if err != kerr.ENOENT || parent == nil {
		return err
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if _, exists := parent.children[name]; exists {
		return kerr.EEXIST
	}
	parent.children[name] = newDir(mode)
	return 0
}

// Unlink implements vfs.VfsFs.
func (f *Fs) Unlink(p kpath.Path) kerr.Err_t {
	node, parent, name, err := f.lookup(p)
	if err != 0 {
		return err
	}
	if node.isDir {
		node.mu.Lock()
		empty := len(node.children) == 0
		node.mu.Unlock()
		if !empty {
			return kerr.ENOTSUP
		}
	}
	parent.mu.Lock()
	delete(parent.children, name)
	parent.mu.Unlock()
	return 0
}

// Stat implements vfs.VfsFs.
func (f *Fs) Stat(p kpath.Path, st *kstat.Stat_t) kerr.Err_t {
	node, _, _, err := f.lookup(p)
	if err != 0 {
		return err
	}
	fillStat(node, st)
	return 0
}

// Sync implements vfs.VfsFs; ramfs has nothing to flush.
func (f *Fs) Sync() kerr.Err_t { return 0 }

func fillStat(n *inode, st *kstat.Stat_t) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev != nil {
		n.dev.Stat(st)
		st.Wino(n.ino)
		return
	}
	st.Wino(n.ino)
	st.Wsize(uint64(len(n.data)))
	st.Wmtime(n.mtime)
	mode := n.mode & kstat.ModePerm
	if n.isDir {
		mode |= kstat.ModeDir
	} else {
		mode |= kstat.ModeReg
	}
	st.Wmode(mode)
	st.Wnlink(1)
}

// fileHandle is the open-file capability ramfs hands back, implementing
// vfs.File over a single inode's byte slice.
type fileHandle struct {
	node   *inode
	off    int64
	append bool
}

func (h *fileHandle) Read(buf []byte) (int, kerr.Err_t) {
	n, err := h.ReadAt(buf, h.off)
	if err == 0 {
		h.off += int64(n)
	}
	return n, err
}

func (h *fileHandle) ReadAt(buf []byte, off int64) (int, kerr.Err_t) {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if h.node.isDir {
		return 0, kerr.EISDIR
	}
	if off >= int64(len(h.node.data)) {
		return 0, 0
	}
	n := copy(buf, h.node.data[off:])
	return n, 0
}

func (h *fileHandle) Write(buf []byte) (int, kerr.Err_t) {
	if h.append {
		h.node.mu.Lock()
		h.off = int64(len(h.node.data))
		h.node.mu.Unlock()
	}
	n, err := h.WriteAt(buf, h.off)
	if err == 0 {
		h.off += int64(n)
	}
	return n, err
}

func (h *fileHandle) WriteAt(buf []byte, off int64) (int, kerr.Err_t) {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if h.node.isDir {
		return 0, kerr.EISDIR
	}
	end := off + int64(len(buf))
	if end > int64(len(h.node.data)) {
		grown := make([]byte, end)
		copy(grown, h.node.data)
		h.node.data = grown
	}
	copy(h.node.data[off:end], buf)
	return len(buf), 0
}

func (h *fileHandle) Seek(off int64, whence int) (int64, kerr.Err_t) {
	h.node.mu.Lock()
	size := int64(len(h.node.data))
	h.node.mu.Unlock()
	switch whence {
	case 0:
		h.off = off
	case 1:
		h.off += off
	case 2:
		h.off = size + off
	default:
		return 0, kerr.EINVAL
	}
	return h.off, 0
}

func (h *fileHandle) Stat(st *kstat.Stat_t) kerr.Err_t {
	fillStat(h.node, st)
	return 0
}

// Getdents64 returns every child of the directory this handle was
// opened on, sorted by name so the stream sys.Getdents64 re-derives on
// every call (spec.md §4.12) is identical call to call despite Go's
// randomized map iteration order — without that, the handle's byte
// offset would no longer index a stable position in the stream.
func (h *fileHandle) Getdents64() ([]vfs.DirEntry, kerr.Err_t) {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if !h.node.isDir {
		return nil, kerr.ENOTDIR
	}
	names := make([]string, 0, len(h.node.children))
	for name := range h.node.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]vfs.DirEntry, 0, len(names))
	for _, name := range names {
		c := h.node.children[name]
		out = append(out, vfs.DirEntry{Ino: c.ino, Name: name, IsDir: c.isDir})
	}
	return out, 0
}

func (h *fileHandle) Close() kerr.Err_t  { return 0 }
func (h *fileHandle) Reopen() kerr.Err_t { return 0 }
func (h *fileHandle) InodeNum() uint64   { return h.node.ino }
