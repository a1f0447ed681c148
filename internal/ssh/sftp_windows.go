//go:build windows

package ssh

import (
	"strconv"

	"github.com/pkg/sftp"
)

// getOwnerGroup reads uid and gid from remote file metadata; local Windows
// files have neither.
func getOwnerGroup(sys any) (string, string) {
	if stat, ok := sys.(*sftp.FileStat); ok {
		return strconv.Itoa(int(stat.UID)), strconv.Itoa(int(stat.GID))
	}
	return "-", "-"
}
