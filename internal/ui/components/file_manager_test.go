package components

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
)

type fakeRemote struct {
	wd        string
	dirs      map[string][]ssh.FileInfo
	downloads []string
	uploads   []string
	mkdirs    []string
	renames   []string
	removed   []string
	closed    bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		wd: "/home/admin",
		dirs: map[string][]ssh.FileInfo{
			"/home/admin": {
				{Name: "logs", IsDir: true},
				{Name: "app.conf", Size: 12},
				{Name: "notes.txt", Size: 2048},
			},
			"/home/admin/logs": {{Name: "today.log", Size: 1}},
		},
	}
}

func (f *fakeRemote) WorkingDir() (string, error) { return f.wd, nil }

func (f *fakeRemote) List(dir string) ([]ssh.FileInfo, error) {
	files, ok := f.dirs[dir]
	if !ok {
		return nil, os.ErrNotExist
	}
	return files, nil
}

func (f *fakeRemote) Download(remotePath, localPath string) (string, int64, error) {
	f.downloads = append(f.downloads, remotePath+" -> "+localPath)
	return filepath.Join(localPath, filepath.Base(remotePath)), 12, nil
}

func (f *fakeRemote) Upload(localPath, remotePath string) (string, int64, error) {
	f.uploads = append(f.uploads, localPath+" -> "+remotePath)
	return remotePath + "/" + filepath.Base(localPath), 3, nil
}

func (f *fakeRemote) Mkdir(dir string) error {
	f.mkdirs = append(f.mkdirs, dir)
	return nil
}

func (f *fakeRemote) Rename(oldPath, newPath string) error {
	f.renames = append(f.renames, oldPath+" -> "+newPath)
	return nil
}

func (f *fakeRemote) Remove(target string) error {
	f.removed = append(f.removed, target)
	return nil
}

func (f *fakeRemote) Close() error {
	f.closed = true
	return nil
}

// drain runs cmd and feeds every resulting message back into the manager.
func drain(s *FileManager, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			drain(s, c)
		}
	case nil:
	default:
		_, next := s.Update(msg)
		drain(s, next)
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(s *FileManager, keys ...string) {
	for _, k := range keys {
		_, cmd := s.Update(keyMsg(k))
		drain(s, cmd)
	}
}

func newTestManager(t *testing.T) (*FileManager, *fakeRemote, string) {
	t.Helper()
	local := t.TempDir()
	if err := os.WriteFile(filepath.Join(local, "upload.txt"), []byte("hey"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	remote := newFakeRemote()
	s := NewFileManager("db1 (admin@10.0.0.5:22)", remote, local)
	s.SetSize(160, 40)
	drain(s, s.Init())
	return s, remote, local
}

func TestFileManagerInitListsBothSides(t *testing.T) {
	s, _, local := newTestManager(t)

	if s.remotePanel.Path != "/home/admin" || len(s.remotePanel.Files) != 3 {
		t.Fatalf("Unexpected remote panel %+v", s.remotePanel)
	}
	if s.localPanel.Path != local || len(s.localPanel.Files) != 1 {
		t.Fatalf("Unexpected local panel %+v", s.localPanel)
	}
	view := s.View()
	for _, want := range []string{"db1 (admin@10.0.0.5:22)", "upload.txt", "notes.txt"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected %q in view", want)
		}
	}
}

func TestFileManagerNavigateRemote(t *testing.T) {
	s, _, _ := newTestManager(t)

	press(s, "tab", "enter")
	if s.remotePanel.Path != "/home/admin/logs" {
		t.Fatalf("Expected to enter logs, got %s", s.remotePanel.Path)
	}
	press(s, "h")
	if s.remotePanel.Path != "/home/admin" {
		t.Fatalf("Expected to go back up, got %s", s.remotePanel.Path)
	}
}

func TestFileManagerTransfers(t *testing.T) {
	s, remote, local := newTestManager(t)

	press(s, "u")
	want := filepath.Join(local, "upload.txt") + " -> /home/admin"
	if !slices.Equal(remote.uploads, []string{want}) {
		t.Errorf("Expected upload %q, got %v", want, remote.uploads)
	}
	if !strings.Contains(s.status, "Upload completed") {
		t.Errorf("Unexpected status %q", s.status)
	}

	press(s, "tab", "down", "g")
	want = "/home/admin/app.conf -> " + local
	if !slices.Equal(remote.downloads, []string{want}) {
		t.Errorf("Expected download %q, got %v", want, remote.downloads)
	}

	// Directories are not transferred.
	press(s, "tab", "tab")
	s.remotePanel.SelectedIdx = 0
	press(s, "g")
	if len(remote.downloads) != 1 {
		t.Errorf("Expected directory download to be refused, got %v", remote.downloads)
	}
}

func TestFileManagerRemoteOperations(t *testing.T) {
	s, remote, _ := newTestManager(t)
	press(s, "tab")

	press(s, "n", "b", "a", "k", "enter")
	if !slices.Equal(remote.mkdirs, []string{"/home/admin/bak"}) {
		t.Errorf("Unexpected mkdirs %v", remote.mkdirs)
	}

	press(s, "down", "r", "backspace", "backspace", "backspace", "backspace", "i", "n", "i", "enter")
	if !slices.Equal(remote.renames, []string{"/home/admin/app.conf -> /home/admin/app.ini"}) {
		t.Errorf("Unexpected renames %v", remote.renames)
	}

	press(s, "d", "n")
	if len(remote.removed) != 0 {
		t.Fatalf("Declined delete must not remove, got %v", remote.removed)
	}
	press(s, "d", "y")
	if !slices.Equal(remote.removed, []string{"/home/admin/app.conf"}) {
		t.Errorf("Unexpected removals %v", remote.removed)
	}
}

func TestFileManagerSearch(t *testing.T) {
	s, _, _ := newTestManager(t)
	press(s, "tab", "/", "n", "t")
	if len(s.remotePanel.Files) != 1 || s.remotePanel.Files[0].Name != "notes.txt" {
		t.Fatalf("Expected only notes.txt, got %+v", s.remotePanel.Files)
	}
	press(s, "esc")
	if len(s.remotePanel.Files) != 3 {
		t.Errorf("Esc must restore the listing, got %d files", len(s.remotePanel.Files))
	}
}

func TestFileManagerDoubleEscFinishes(t *testing.T) {
	s, remote, _ := newTestManager(t)
	press(s, "esc")
	if s.IsFinished() {
		t.Fatal("A single Esc must not close")
	}
	press(s, "esc")
	if !s.IsFinished() || s.View() != "" {
		t.Fatal("Expected double Esc to close")
	}

	s.lastEsc = time.Time{}
	if err := s.Close(); err != nil || !remote.closed {
		t.Errorf("Expected Close to close the client, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close must be a no-op, got %v", err)
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 2048: "2.0 KB", 5 << 20: "5.0 MB"}
	for size, want := range tests {
		if got := formatSize(size); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", size, got, want)
		}
	}
}
