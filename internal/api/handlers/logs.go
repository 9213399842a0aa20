package handlers

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/TheGojiOG/athena/internal/server"
	"github.com/gin-gonic/gin"
)

const (
	defaultTailLines = 200
	maxTailLines     = 5000
	maxLogLineBytes  = 1024 * 1024
)

// LogHandler serves the per-server log files written by lifecycle operations.
type LogHandler struct {
	store ServerStore
	paths *server.PathResolver
}

// NewLogHandler creates a new log handler
func NewLogHandler(st ServerStore, paths *server.PathResolver) *LogHandler {
	return &LogHandler{store: st, paths: paths}
}

// GetLogTail returns the last lines of a server's steamcmd or server log,
// optionally only those passing an output filter.
// GET /servers/:id/logs/:kind?lines=N&stream=stderr&filter=errors
func (h *LogHandler) GetLogTail(c *gin.Context) {
	srv, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load server")
		return
	}

	stderr := c.Query("stream") == "stderr"
	path, err := logPath(h.paths.Resolve(srv.ID), c.Param("kind"), stderr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter, err := parseOutputFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := strconv.Atoi(c.DefaultQuery("lines", strconv.Itoa(defaultTailLines)))
	if err != nil || count <= 0 {
		count = defaultTailLines
	}
	if count > maxTailLines {
		count = maxTailLines
	}

	lines, err := tailFile(path, count, filter.Match)
	if errors.Is(err, fs.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Log not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read log", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"server_id": srv.ID, "path": path, "lines": lines})
}

func logPath(paths server.Paths, kind string, stderr bool) (string, error) {
	switch kind {
	case "steamcmd":
		if stderr {
			return paths.InstallStderrLog(), nil
		}
		return paths.InstallLog(), nil
	case "server":
		if stderr {
			return paths.ServerStderrLog(), nil
		}
		return paths.ServerLog(), nil
	default:
		return "", fmt.Errorf("unknown log kind %q", kind)
	}
}

// tailFile keeps a ring of the last n kept lines while scanning the file once.
func tailFile(path string, n int, keep func(string) bool) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ring := make([]string, n)
	total := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLogLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if keep != nil && !keep(line) {
			continue
		}
		ring[total%n] = line
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if total <= n {
		return append([]string{}, ring[:total]...), nil
	}

	start := total % n
	lines := make([]string, 0, n)
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return lines, nil
}
