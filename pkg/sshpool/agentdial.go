package sshpool

import "net"

// dialAgent connects to the ssh-agent UNIX domain socket at path.
// Isolated in its own function so tests can stub agent discovery.
func dialAgent(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}
