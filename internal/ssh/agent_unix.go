//go:build !windows

package ssh

import (
	"io"
	"net"
	"os"

	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent connects to the agent behind SSH_AUTH_SOCK. The closer may be
// nil.
func getSSHAgent() (agent.Agent, io.Closer) {
	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		if conn, err := net.Dial("unix", socket); err == nil {
			return agent.NewClient(conn), conn
		}
	}
	return nil, nil
}
