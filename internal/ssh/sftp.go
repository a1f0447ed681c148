package ssh

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/pkg/sftp"

	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
)

// FileInfo is a directory entry as shown by the file views.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
	Perm    string // e.g. drwxr-xr-x
	Owner   string // uid
	Group   string // gid
}

func fileInfoFrom(info fs.FileInfo) FileInfo {
	owner, group := getOwnerGroup(info.Sys())
	return FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Perm:    info.Mode().String(),
		Owner:   owner,
		Group:   group,
	}
}

// sortFiles puts directories first, then sorts by name.
func sortFiles(files []FileInfo) {
	slices.SortFunc(files, func(a, b FileInfo) int {
		if a.IsDir != b.IsDir {
			if a.IsDir {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

// SFTPClient runs SFTP over an established Session. Closing it leaves the
// session open.
type SFTPClient struct {
	session *Session
	client  *sftp.Client
}

// OpenSFTP starts the sftp subsystem on the session.
func (s *Session) OpenSFTP() (*SFTPClient, error) {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	s.MarkInUse()
	logging.Infof("[SFTPClient] Opened on %s", s.profile.ID)
	return &SFTPClient{session: s, client: client}, nil
}

// Close ends the SFTP subsystem.
func (c *SFTPClient) Close() error {
	return c.client.Close()
}

// wrap reports a dropped transport in place of the sftp error it caused.
func (c *SFTPClient) wrap(msg string, err error) error {
	if dropped := c.session.Err(); dropped != nil {
		return dropped
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WorkingDir returns the remote working directory.
func (c *SFTPClient) WorkingDir() (string, error) {
	wd, err := c.client.Getwd()
	if err != nil {
		return "", c.wrap("failed to get working directory", err)
	}
	return wd, nil
}

// List returns the entries of a remote directory.
func (c *SFTPClient) List(dir string) ([]FileInfo, error) {
	entries, err := c.client.ReadDir(dir)
	if err != nil {
		return nil, c.wrap("failed to read directory", err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		files = append(files, fileInfoFrom(entry))
	}
	sortFiles(files)
	return files, nil
}

// ListLocal returns the entries of a local directory.
func ListLocal(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfoFrom(info))
	}
	sortFiles(files)
	return files, nil
}

// Download copies a remote file to localPath. If localPath is an existing
// directory the remote base name is kept. It returns the local path written.
func (c *SFTPClient) Download(remotePath, localPath string) (string, int64, error) {
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		localPath = filepath.Join(localPath, path.Base(remotePath))
	}

	remote, err := c.client.Open(remotePath)
	if err != nil {
		return "", 0, c.wrap("failed to open remote file", err)
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create local file: %w", err)
	}

	n, err := io.Copy(local, remote)
	if closeErr := local.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", n, c.wrap("failed to download file", err)
	}
	logging.Infof("[SFTPClient] Downloaded %s to %s (%d bytes)", remotePath, localPath, n)
	return localPath, n, nil
}

// Upload copies a local file to remotePath. If remotePath is an existing
// remote directory the local base name is kept. It returns the remote path
// written.
func (c *SFTPClient) Upload(localPath, remotePath string) (string, int64, error) {
	if info, err := c.client.Stat(remotePath); err == nil && info.IsDir() {
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	}

	local, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open local file: %w", err)
	}
	defer local.Close()

	remote, err := c.client.Create(remotePath)
	if err != nil {
		return "", 0, c.wrap("failed to create remote file", err)
	}

	n, err := io.Copy(remote, local)
	if closeErr := remote.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", n, c.wrap("failed to upload file", err)
	}
	logging.Infof("[SFTPClient] Uploaded %s to %s (%d bytes)", localPath, remotePath, n)
	return remotePath, n, nil
}

// Mkdir creates a remote directory and any missing parents.
func (c *SFTPClient) Mkdir(dir string) error {
	if err := c.client.MkdirAll(dir); err != nil {
		return c.wrap("failed to create directory", err)
	}
	return nil
}

// Rename moves a remote file or directory.
func (c *SFTPClient) Rename(oldPath, newPath string) error {
	if err := c.client.Rename(oldPath, newPath); err != nil {
		return c.wrap("failed to rename", err)
	}
	return nil
}

// Remove deletes a remote file, or a directory with everything below it.
// A symbolic link is removed itself, never the directory it points to.
func (c *SFTPClient) Remove(target string) error {
	info, err := c.client.Lstat(target)
	if err != nil {
		return c.wrap("failed to stat", err)
	}
	if !info.IsDir() {
		if err := c.client.Remove(target); err != nil {
			return c.wrap("failed to delete file", err)
		}
		return nil
	}
	if err := c.removeDir(target); err != nil {
		return c.wrap("failed to delete directory", err)
	}
	return nil
}

func (c *SFTPClient) removeDir(dir string) error {
	entries, err := c.client.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		child := path.Join(dir, entry.Name())
		if entry.IsDir() {
			errs = append(errs, c.removeDir(child))
		} else {
			errs = append(errs, c.client.Remove(child))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return c.client.RemoveDirectory(dir)
}
