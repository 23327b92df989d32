package preflight

import (
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"dreamloop/internal/config"
	"dreamloop/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckTransform reports whether the configured dream command resolves on PATH.
func CheckTransform(cfg *config.Config) Result {
	const name = "Dream transform"

	if cfg.Transform.Mode == config.TransformModePassthrough {
		return Result{Name: name, Passed: true, Detail: "passthrough (no command)"}
	}
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return Result{Name: name, Detail: missing[0].Detail}
	}
	if len(statuses) == 0 {
		return Result{Name: name, Detail: "command not configured"}
	}
	return Result{Name: name, Passed: true, Detail: statuses[0].Path}
}

// CheckBindAddress verifies that addr can be listened on. An empty address
// means the listener is disabled.
func CheckBindAddress(name, addr string) Result {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	_ = ln.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", addr)}
}
