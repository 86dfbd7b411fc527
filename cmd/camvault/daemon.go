package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// daemonize re-executes the current command in the background without the
// --daemonize flag and exits the parent.
func daemonize(pidFile string, logFile string) error {
	// Re-parented to init: this is already the detached child
	if os.Getppid() == 1 {
		return nil
	}
	// Resolve our own binary for the re-exec
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Forward the original args minus the daemon-only flags
	var args []string
	skipNext := false
	for _, arg := range os.Args[1:] {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case arg == "--daemonize", strings.HasPrefix(arg, "--daemonize="):
			continue
		case arg == "--logfile":
			skipNext = true
			continue
		case strings.HasPrefix(arg, "--logfile="):
			continue
		}
		args = append(args, arg)
	}

	// #nosec G204
	cmd := exec.Command(executable, args...)
	// New session, detached from the terminal
	configureDaemonAttrs(cmd)

	// Detach stdin; stdout and stderr go to the log file when one is given
	cmd.Stdin = nil
	if logFile != "" {
		// #nosec G304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}
	// Start the child process
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}
	// the child rewrites the pid file itself when --pidfile was passed through
	if pidFile != "" {
		if err := writePidFile(pidFile, cmd.Process.Pid); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}
	fmt.Printf("camvault started with PID %d\n", cmd.Process.Pid)
	// Parent exits
	os.Exit(0)
	return nil
}

// writePidFile records the daemon pid.
func writePidFile(pidFile string, pid int) error {
	// #nosec G302
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644)
}

// removePidFile removes the pid file, if any.
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
