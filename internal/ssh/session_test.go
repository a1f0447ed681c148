package ssh

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func connectPassword(t *testing.T, srv *testServer) *Session {
	t.Helper()
	m := newTestManager(t, &fakeSecrets{})
	profile := srv.profile(passwordAuth)
	profile.Secret = sealedString("s3cret")

	_, sess, err := finish(t, m.Connect(context.Background(), profile))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestShellBridge(t *testing.T) {
	srv := newTestServer(t, "s3cret", nil)
	sess := connectPassword(t, srv)

	bridge, err := sess.OpenShell("")
	if err != nil {
		t.Fatalf("OpenShell failed: %v", err)
	}
	if sess.State() != StateInUse {
		t.Errorf("Expected InUse after OpenShell, got %s", sess.State())
	}

	var stdout, stderr bytes.Buffer
	bridge.SetStdin(strings.NewReader(""))
	bridge.SetStdout(&stdout)
	bridge.SetStderr(&stderr)

	if err := bridge.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(stdout.String(), strings.TrimSpace(shellGreeting)) {
		t.Errorf("Expected shell output, got %q", stdout.String())
	}

	// The transport outlives the shell channel.
	if sess.State().Terminal() {
		t.Errorf("Session ended with the shell: %s", sess.State())
	}
}

func TestShellAndSFTPShareTransport(t *testing.T) {
	srv := newTestServer(t, "s3cret", nil)
	sess := connectPassword(t, srv)

	client, err := sess.OpenSFTP()
	if err != nil {
		t.Fatalf("OpenSFTP failed: %v", err)
	}
	defer client.Close()

	bridge, err := sess.OpenShell("vt100")
	if err != nil {
		t.Fatalf("OpenShell failed: %v", err)
	}
	var out bytes.Buffer
	bridge.SetStdin(strings.NewReader(""))
	bridge.SetStdout(&out)
	bridge.SetStderr(&out)
	if err := bridge.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := client.WorkingDir(); err != nil {
		t.Errorf("SFTP unusable after shell exit: %v", err)
	}
}

func TestSFTPClient(t *testing.T) {
	srv := newTestServer(t, "s3cret", nil)
	sess := connectPassword(t, srv)

	client, err := sess.OpenSFTP()
	if err != nil {
		t.Fatalf("OpenSFTP failed: %v", err)
	}
	defer client.Close()

	localDir := t.TempDir()
	remoteDir := filepath.ToSlash(t.TempDir())

	src := filepath.Join(localDir, "notes.txt")
	if err := os.WriteFile(src, []byte("remote payload"), 0600); err != nil {
		t.Fatalf("Failed to write local file: %v", err)
	}

	if err := client.Mkdir(remoteDir + "/sub/deeper"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	written, n, err := client.Upload(src, remoteDir)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if written != remoteDir+"/notes.txt" || n != int64(len("remote payload")) {
		t.Errorf("Unexpected upload result %s, %d", written, n)
	}

	files, err := client.List(remoteDir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 2 || !files[0].IsDir || files[0].Name != "sub" || files[1].Name != "notes.txt" {
		t.Errorf("Expected [sub notes.txt] with directory first, got %+v", files)
	}

	if err := client.Rename(written, remoteDir+"/renamed.txt"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	downloadDir := t.TempDir()
	local, _, err := client.Download(remoteDir+"/renamed.txt", downloadDir)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, err := os.ReadFile(local)
	if err != nil || string(data) != "remote payload" {
		t.Errorf("Downloaded content %q, %v", data, err)
	}
	if filepath.Base(local) != "renamed.txt" {
		t.Errorf("Expected base name kept, got %s", local)
	}

	if err := client.Remove(remoteDir + "/sub"); err != nil {
		t.Fatalf("Remove directory failed: %v", err)
	}
	if err := client.Remove(remoteDir + "/renamed.txt"); err != nil {
		t.Fatalf("Remove file failed: %v", err)
	}
	files, err = client.List(remoteDir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected empty directory, got %+v", files)
	}

	local2, err := ListLocal(downloadDir)
	if err != nil || len(local2) != 1 {
		t.Errorf("ListLocal returned %+v, %v", local2, err)
	}
}

func TestSFTPRemoveKeepsSymlinkTarget(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need extra privileges on windows")
	}
	srv := newTestServer(t, "s3cret", nil)
	sess := connectPassword(t, srv)

	client, err := sess.OpenSFTP()
	if err != nil {
		t.Fatalf("OpenSFTP failed: %v", err)
	}
	defer client.Close()

	root := t.TempDir()
	victim := filepath.Join(root, "victim")
	if err := os.MkdirAll(victim, 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	keep := filepath.Join(victim, "keep.txt")
	if err := os.WriteFile(keep, []byte("keep"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	link := filepath.Join(root, "link")
	if err := os.Symlink(victim, link); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	nested := filepath.Join(root, "tree")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.Symlink(victim, filepath.Join(nested, "inner")); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	if err := client.Remove(filepath.ToSlash(link)); err != nil {
		t.Fatalf("Remove link failed: %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Errorf("Expected the link to be gone, got %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("Link target content was deleted: %v", err)
	}

	if err := client.Remove(filepath.ToSlash(nested)); err != nil {
		t.Fatalf("Remove directory failed: %v", err)
	}
	if _, err := os.Stat(nested); !os.IsNotExist(err) {
		t.Errorf("Expected the directory to be gone, got %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("Target behind a nested link was deleted: %v", err)
	}
}

func TestSessionTransportDropped(t *testing.T) {
	srv := newTestServer(t, "s3cret", nil)
	sess := connectPassword(t, srv)
	sess.MarkInUse()

	srv.dropAll()

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Session did not notice the dropped transport")
	}
	if sess.State() != StateFailed {
		t.Errorf("Expected Failed, got %s", sess.State())
	}
	if !errors.Is(sess.Err(), ErrTransportDropped) {
		t.Errorf("Expected ErrTransportDropped, got %v", sess.Err())
	}
	if err := sess.Close(); err != nil {
		t.Errorf("Close after drop should be a no-op, got %v", err)
	}
}

func TestAttemptCancelClosesSession(t *testing.T) {
	srv := newTestServer(t, "s3cret", nil)
	m := newTestManager(t, &fakeSecrets{})
	profile := srv.profile(passwordAuth)
	profile.Secret = sealedString("s3cret")

	a := m.Connect(context.Background(), profile)
	_, sess, err := finish(t, a)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	a.Cancel()
	if sess.State() != StateClosed {
		t.Errorf("Expected Closed after cancel, got %s", sess.State())
	}
}
