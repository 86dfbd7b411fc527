package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// pidMeta is the second line of a recorder pidfile.
type pidMeta struct {
	StartUnix int64  `json:"start_unix"`
	Dir       string `json:"dir,omitempty"`
}

// writePIDFile records the recorder pid so a restarted daemon can find
// recorders orphaned by a crash. Failures only cost orphan detection.
func writePIDFile(path string, pid int) {
	if path == "" || pid <= 0 {
		return
	}
	meta, _ := json.Marshal(pidMeta{StartUnix: procStartUnix(pid)})
	data := strconv.Itoa(pid) + "\n" + string(meta) + "\n"
	_ = os.WriteFile(path, []byte(data), 0o600)
}

func removePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// readPIDFile returns the pid and recorded start time (0 when absent).
func readPIDFile(path string) (int, int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	pidLine, rest, _ := strings.Cut(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	var m pidMeta
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &m); err != nil {
		return pid, 0, nil
	}
	return pid, m.StartUnix, nil
}

// orphanAlive reports whether pid still names the recorder that wrote the
// pidfile: same start time and a command line that writes into dir.
func orphanAlive(pid int, startUnix int64, dir string) bool {
	if !processAlive(pid) {
		return false
	}
	if startUnix > 0 {
		if cur := procStartUnix(pid); cur > 0 && cur != startUnix {
			return false // pid reused
		}
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	cmdline, err := p.Cmdline()
	if err != nil {
		return false
	}
	return strings.Contains(cmdline, dir)
}

// reapOrphan kills a recorder left behind in dir by a previous daemon run.
func (s *Supervisor) reapOrphan(dir string, log *slog.Logger) {
	path := dir + string(os.PathSeparator) + pidFileName
	pid, start, err := readPIDFile(path)
	if err != nil {
		return
	}
	defer removePIDFile(path)
	if !orphanAlive(pid, start, dir) {
		return
	}
	log.Warn("killing orphaned recorder from previous run", "pid", pid)
	_ = killGroup(pid)
}
