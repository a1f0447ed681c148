package components

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
)

// RemoteFS is the remote side of the file manager. *ssh.SFTPClient
// implements it.
type RemoteFS interface {
	WorkingDir() (string, error)
	List(dir string) ([]ssh.FileInfo, error)
	Download(remotePath, localPath string) (string, int64, error)
	Upload(localPath, remotePath string) (string, int64, error)
	Mkdir(dir string) error
	Rename(oldPath, newPath string) error
	Remove(target string) error
	Close() error
}

// Panel is one side of the file manager.
type Panel struct {
	Path         string
	Files        []ssh.FileInfo
	SelectedIdx  int
	ScrollOffset int
	remote       bool
}

func (p *Panel) join(name string) string {
	if p.remote {
		return path.Join(p.Path, name)
	}
	return filepath.Join(p.Path, name)
}

func (p *Panel) parent() string {
	if p.remote {
		return path.Dir(p.Path)
	}
	return filepath.Dir(p.Path)
}

func (p *Panel) selected() (ssh.FileInfo, bool) {
	if p.SelectedIdx < 0 || p.SelectedIdx >= len(p.Files) {
		return ssh.FileInfo{}, false
	}
	return p.Files[p.SelectedIdx], true
}

// listedMsg carries a fresh directory listing.
type listedMsg struct {
	remote bool
	path   string
	files  []ssh.FileInfo
	err    error
}

// operationMsg reports a finished transfer or file operation.
type operationMsg struct {
	operation string
	detail    string
	err       error
}

// InputMode is what typed text currently edits.
type InputMode int

const (
	ModeNormal InputMode = iota
	ModeSearch
	ModeMkdir
	ModeRename
	ModeChangeDir
	ModeConfirmDelete
)

const escTimeout = 2 * time.Second

// FileManager is a two-panel local/remote browser over SFTP.
type FileManager struct {
	target      string
	remoteFS    RemoteFS
	localPanel  Panel
	remotePanel Panel
	activePanel int // 0 = local, 1 = remote
	width       int
	height      int
	status      string
	error       string
	busy        bool
	finished    bool
	lastEsc     time.Time
	inputMode   InputMode
	inputBuffer string
	unfiltered  []ssh.FileInfo
	deleteName  string
}

// NewFileManager browses fs for target, which labels the header. The local
// panel starts in localDir.
func NewFileManager(target string, fs RemoteFS, localDir string) *FileManager {
	if abs, err := filepath.Abs(localDir); err == nil {
		localDir = abs
	}
	return &FileManager{
		target:      target,
		remoteFS:    fs,
		localPanel:  Panel{Path: localDir},
		remotePanel: Panel{Path: ".", remote: true},
		status:      "Loading...",
	}
}

func (s *FileManager) Init() tea.Cmd {
	fs := s.remoteFS
	return tea.Batch(
		s.listLocal(s.localPanel.Path),
		func() tea.Msg {
			wd, err := fs.WorkingDir()
			if err != nil {
				return listedMsg{remote: true, err: err}
			}
			files, err := fs.List(wd)
			return listedMsg{remote: true, path: wd, files: files, err: err}
		},
	)
}

func (s *FileManager) listLocal(dir string) tea.Cmd {
	return func() tea.Msg {
		files, err := ssh.ListLocal(dir)
		return listedMsg{path: dir, files: files, err: err}
	}
}

func (s *FileManager) listRemote(dir string) tea.Cmd {
	fs := s.remoteFS
	return func() tea.Msg {
		files, err := fs.List(dir)
		return listedMsg{remote: true, path: dir, files: files, err: err}
	}
}

func (s *FileManager) list(p *Panel, dir string) tea.Cmd {
	if p.remote {
		return s.listRemote(dir)
	}
	return s.listLocal(dir)
}

func (s *FileManager) refresh() tea.Cmd {
	return tea.Batch(s.listLocal(s.localPanel.Path), s.listRemote(s.remotePanel.Path))
}

func (s *FileManager) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.SetSize(msg.Width, msg.Height)
		return s, nil

	case listedMsg:
		if msg.err != nil {
			s.error = fmt.Sprintf("Failed to list files: %v", msg.err)
			return s, nil
		}
		p := &s.localPanel
		if msg.remote {
			p = &s.remotePanel
		}
		if p.Path != msg.path {
			p.SelectedIdx = 0
			p.ScrollOffset = 0
		}
		p.Path = msg.path
		p.Files = msg.files
		p.SelectedIdx = min(p.SelectedIdx, max(len(p.Files)-1, 0))
		if s.status == "Loading..." {
			s.status = "Ready"
		}
		return s, nil

	case operationMsg:
		s.busy = false
		if msg.err != nil {
			s.error = fmt.Sprintf("%s failed: %v", msg.operation, msg.err)
			return s, nil
		}
		s.status = fmt.Sprintf("%s completed: %s", msg.operation, msg.detail)
		return s, s.refresh()

	case tea.KeyMsg:
		if s.busy {
			return s, nil
		}
		if s.inputMode != ModeNormal {
			return s.handleInput(msg)
		}
		return s.handleKey(msg)
	}
	return s, nil
}

func (s *FileManager) activePanelPtr() *Panel {
	if s.activePanel == 0 {
		return &s.localPanel
	}
	return &s.remotePanel
}

func (s *FileManager) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	panel := s.activePanelPtr()

	if msg.String() != "esc" {
		s.lastEsc = time.Time{}
	}

	switch msg.String() {
	case "esc":
		// Double Esc leaves the file manager.
		now := time.Now()
		if !s.lastEsc.IsZero() && now.Sub(s.lastEsc) <= escTimeout {
			s.finished = true
			return s, nil
		}
		s.lastEsc = now
		s.status = "Press Esc again to close"

	case "q":
		s.finished = true

	case "tab":
		s.activePanel = 1 - s.activePanel

	case "up", "k":
		if panel.SelectedIdx > 0 {
			panel.SelectedIdx--
		}

	case "down", "j":
		if panel.SelectedIdx < len(panel.Files)-1 {
			panel.SelectedIdx++
		}

	case "enter", "l":
		if f, ok := panel.selected(); ok && f.IsDir {
			return s, s.list(panel, panel.join(f.Name))
		}

	case "backspace", "h":
		parent := panel.parent()
		if parent == panel.Path {
			s.error = "Already at root directory"
			return s, nil
		}
		return s, s.list(panel, parent)

	case "g":
		if s.activePanel == 1 {
			return s, s.download()
		}

	case "u":
		if s.activePanel == 0 {
			return s, s.upload()
		}

	case "n":
		s.startInput(ModeMkdir, "", "New directory: ")

	case "r":
		if f, ok := panel.selected(); ok {
			s.startInput(ModeRename, f.Name, "Rename to: ")
		}

	case "c":
		s.startInput(ModeChangeDir, "", "Change directory: ")

	case "d", "x":
		if f, ok := panel.selected(); ok {
			s.deleteName = f.Name
			kind := "file"
			if f.IsDir {
				kind = "directory"
			}
			s.startInput(ModeConfirmDelete, "", fmt.Sprintf("Delete %s '%s'? (y/n): ", kind, f.Name))
		}

	case "/":
		s.unfiltered = panel.Files
		s.startInput(ModeSearch, "", "Search: ")

	case "ctrl+l":
		return s, s.list(panel, panel.Path)
	}
	return s, nil
}

func (s *FileManager) startInput(mode InputMode, value, prompt string) {
	s.inputMode = mode
	s.inputBuffer = value
	s.status = prompt
}

func (s *FileManager) endInput(status string) {
	s.inputMode = ModeNormal
	s.inputBuffer = ""
	s.status = status
}

func (s *FileManager) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	panel := s.activePanelPtr()

	if s.inputMode == ModeConfirmDelete {
		switch msg.String() {
		case "y", "Y":
			name := s.deleteName
			s.endInput("Deleting " + name + "...")
			return s, s.run("Delete", name, func() error { return s.remove(panel, panel.join(name)) })
		case "n", "N", "esc":
			s.endInput("Delete canceled")
		}
		return s, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		if s.inputMode == ModeSearch {
			panel.Files = s.unfiltered
			panel.SelectedIdx = 0
		}
		s.endInput("Canceled")
		return s, nil

	case tea.KeyEnter:
		value := strings.TrimSpace(s.inputBuffer)
		mode := s.inputMode
		s.endInput("Ready")
		if value == "" {
			if mode == ModeSearch {
				panel.Files = s.unfiltered
			}
			return s, nil
		}
		return s, s.submitInput(mode, panel, value)

	case tea.KeyBackspace:
		if r := []rune(s.inputBuffer); len(r) > 0 {
			s.inputBuffer = string(r[:len(r)-1])
		}

	case tea.KeyCtrlU:
		s.inputBuffer = ""

	case tea.KeySpace:
		s.inputBuffer += " "

	case tea.KeyRunes:
		s.inputBuffer += string(msg.Runes)

	default:
		return s, nil
	}

	if s.inputMode == ModeSearch {
		s.applySearch(panel)
	}
	return s, nil
}

// applySearch narrows the panel to fuzzy matches, best first.
func (s *FileManager) applySearch(panel *Panel) {
	panel.SelectedIdx = 0
	panel.ScrollOffset = 0
	if s.inputBuffer == "" {
		panel.Files = s.unfiltered
		return
	}
	names := make([]string, len(s.unfiltered))
	for i, f := range s.unfiltered {
		names[i] = f.Name
	}
	matches := fuzzy.Find(s.inputBuffer, names)
	files := make([]ssh.FileInfo, len(matches))
	for i, m := range matches {
		files[i] = s.unfiltered[m.Index]
	}
	panel.Files = files
}

func (s *FileManager) submitInput(mode InputMode, panel *Panel, value string) tea.Cmd {
	switch mode {
	case ModeMkdir:
		dir := panel.join(value)
		return s.run("Create directory", value, func() error {
			if panel.remote {
				return s.remoteFS.Mkdir(dir)
			}
			return os.MkdirAll(dir, 0o755)
		})

	case ModeRename:
		f, ok := panel.selected()
		if !ok || f.Name == value {
			return nil
		}
		from, to := panel.join(f.Name), panel.join(value)
		return s.run("Rename", f.Name+" → "+value, func() error {
			if panel.remote {
				return s.remoteFS.Rename(from, to)
			}
			return os.Rename(from, to)
		})

	case ModeChangeDir:
		dir := value
		if !strings.HasPrefix(dir, "/") && !filepath.IsAbs(dir) {
			dir = panel.join(dir)
		}
		return s.list(panel, dir)
	}
	return nil
}

func (s *FileManager) remove(panel *Panel, target string) error {
	if panel.remote {
		return s.remoteFS.Remove(target)
	}
	return os.RemoveAll(target)
}

// run executes op off the update loop and reports it as an operationMsg.
func (s *FileManager) run(operation, detail string, op func() error) tea.Cmd {
	s.busy = true
	return func() tea.Msg {
		return operationMsg{operation: operation, detail: detail, err: op()}
	}
}

func (s *FileManager) download() tea.Cmd {
	f, ok := s.remotePanel.selected()
	if !ok {
		s.error = "No file selected"
		return nil
	}
	if f.IsDir {
		s.error = "Only files can be downloaded"
		return nil
	}
	remotePath := s.remotePanel.join(f.Name)
	localDir := s.localPanel.Path
	s.status = "Downloading " + f.Name + "..."
	fs := s.remoteFS
	s.busy = true
	return func() tea.Msg {
		dst, n, err := fs.Download(remotePath, localDir)
		return operationMsg{operation: "Download", detail: fmt.Sprintf("%s (%s)", dst, formatSize(n)), err: err}
	}
}

func (s *FileManager) upload() tea.Cmd {
	f, ok := s.localPanel.selected()
	if !ok {
		s.error = "No file selected"
		return nil
	}
	if f.IsDir {
		s.error = "Only files can be uploaded"
		return nil
	}
	localPath := s.localPanel.join(f.Name)
	remoteDir := s.remotePanel.Path
	s.status = "Uploading " + f.Name + "..."
	fs := s.remoteFS
	s.busy = true
	return func() tea.Msg {
		dst, n, err := fs.Upload(localPath, remoteDir)
		return operationMsg{operation: "Upload", detail: fmt.Sprintf("%s (%s)", dst, formatSize(n)), err: err}
	}
}

func (s *FileManager) View() string {
	if s.finished {
		return ""
	}
	header := fmHeaderStyle.Width(s.width).Render(s.target)

	var status string
	switch {
	case s.error != "":
		status = errorStyle.Render(s.error)
		s.error = ""
	case s.inputMode != ModeNormal:
		status = s.status + s.inputBuffer
	case strings.Contains(s.status, "completed"):
		status = fmSuccessStyle.Render(s.status)
	default:
		status = labelStyle.Render(s.status)
	}
	footer := fmStatusStyle.Width(s.width).Align(lipgloss.Center).Render(status)
	help := hintStyle.Render("tab switch • enter open • h up • g get • u put • n mkdir • r rename • d delete • / search • esc esc close")

	content := s.renderPanels(max(s.height-5, 0))
	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer, help)
}

func (s *FileManager) renderPanels(availableHeight int) string {
	panelWidth := max((s.width/2)-2, 10)
	panelHeight := max(availableHeight-5, 0)

	render := func(p *Panel, title string, active bool) string {
		style := fmPanelStyle
		if active {
			style = fmActivePanelStyle
		}
		return style.
			Width(panelWidth).
			Height(max(availableHeight-2, 0)).
			Render(lipgloss.JoinVertical(lipgloss.Left,
				lipgloss.NewStyle().Width(panelWidth).Render(title+": "+p.Path),
				"",
				s.renderPanelContent(p, panelHeight, panelWidth),
			))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		render(&s.localPanel, "Local", s.activePanel == 0),
		render(&s.remotePanel, "Remote", s.activePanel == 1),
	)
}

func (s *FileManager) renderPanelContent(panel *Panel, maxHeight, maxWidth int) string {
	if len(panel.Files) == 0 {
		return "  (empty directory)"
	}

	if panel.SelectedIdx < panel.ScrollOffset {
		panel.ScrollOffset = panel.SelectedIdx
	}
	if maxHeight > 0 && panel.SelectedIdx >= panel.ScrollOffset+maxHeight {
		panel.ScrollOffset = panel.SelectedIdx - maxHeight + 1
	}
	end := len(panel.Files)
	if maxHeight > 0 {
		end = min(panel.ScrollOffset+maxHeight, end)
	}

	sizeStyle := lipgloss.NewStyle().Width(8).Align(lipgloss.Right).Foreground(colorSubText)
	dateStyle := lipgloss.NewStyle().Width(12).Align(lipgloss.Right).Foreground(colorInactive)
	permStyle := lipgloss.NewStyle().Width(10).Align(lipgloss.Right).Foreground(colorInactive)

	// icon, name, size, date and mode columns plus gaps
	nameWidth := max(maxWidth-38, 10)

	var lines []string
	for i := panel.ScrollOffset; i < end; i++ {
		f := panel.Files[i]
		name := f.Name
		if r := []rune(name); len(r) > nameWidth {
			name = string(r[:nameWidth-1]) + "…"
		}
		icon := "📄"
		nameStyle := lipgloss.NewStyle().Width(nameWidth)
		if f.IsDir {
			icon = "📁"
			nameStyle = fmDirStyle.Width(nameWidth)
		}
		line := lipgloss.JoinHorizontal(lipgloss.Bottom,
			icon, " ",
			nameStyle.Render(name), "  ",
			sizeStyle.Render(formatSize(f.Size)), " ",
			dateStyle.Render(f.ModTime.Format("Jan 02 15:04")), " ",
			permStyle.Render(f.Perm),
		)
		if i == panel.SelectedIdx {
			line = fmSelectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (s *FileManager) SetSize(width, height int) {
	s.width = width
	s.height = height
}

// IsFinished reports whether the user closed the file manager. The caller
// owns closing the SFTP client and the session.
func (s *FileManager) IsFinished() bool {
	return s.finished
}

// Close releases the SFTP client.
func (s *FileManager) Close() error {
	if s.remoteFS == nil {
		return nil
	}
	err := s.remoteFS.Close()
	s.remoteFS = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
