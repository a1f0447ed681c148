//go:build !windows

package ssh

import (
	"strconv"
	"syscall"

	"github.com/pkg/sftp"
)

// getOwnerGroup reads uid and gid from local or remote file metadata.
func getOwnerGroup(sys any) (string, string) {
	switch stat := sys.(type) {
	case *syscall.Stat_t:
		return strconv.Itoa(int(stat.Uid)), strconv.Itoa(int(stat.Gid))
	case *sftp.FileStat:
		return strconv.Itoa(int(stat.UID)), strconv.Itoa(int(stat.GID))
	}
	return "-", "-"
}
