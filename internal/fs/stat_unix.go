//go:build unix

package fs

import (
	"io/fs"
	"syscall"
	"time"
)

// Times extracts access and change timestamps from a FileInfo. When the
// underlying data is not a *syscall.Stat_t both fall back to the
// modification time.
func (m *OSFilesystem) Times(info fs.FileInfo) (atime, ctime time.Time) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime(), info.ModTime()
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec),
		time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
