//go:build windows

package ssh

import (
	"io"
	"os"

	"github.com/Microsoft/go-winio"
	"github.com/davidmz/go-pageant"
	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent tries Pageant first, then the OpenSSH agent named pipe from
// SSH_AUTH_SOCK or its default location. The closer may be nil.
func getSSHAgent() (agent.Agent, io.Closer) {
	if pageant.Available() {
		return pageant.New(), nil
	}

	pipe := os.Getenv("SSH_AUTH_SOCK")
	if pipe == "" {
		pipe = `\\.\pipe\openssh-ssh-agent`
	}
	conn, err := winio.DialPipe(pipe, nil)
	if err != nil || conn == nil {
		return nil, nil
	}
	return agent.NewClient(conn), conn
}
