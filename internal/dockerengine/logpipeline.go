package dockerengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pyrohost/pyro-node-agent/internal/apperr"
	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
)

// ansiSGR matches ANSI "Select Graphic Rendition" escape sequences
// (color codes, bold, etc) that game servers commonly emit for terminal
// output - meaningless once relayed as a plain-text log record.
var ansiSGR = regexp.MustCompile("\x1b\\[[0-9;]*m")

// dockerTimestampPrefix matches the RFC3339Nano timestamp the engine
// prepends to every log line when Timestamps is requested, eg
// "2026-07-31T12:00:00.123456789Z ".
var dockerTimestampPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z\s+`)

// bracketTagPrefix matches a single leading bracketed tag many game
// servers prefix their own lines with, eg "[12:00:00 INFO]: " or
// "[Server thread/INFO]: ".
var bracketTagPrefix = regexp.MustCompile(`^\[[^\]]*\]:?\s*`)

// LogRecord is one classified, cleaned log line, per §4.8.
type LogRecord struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// cleanLine strips ANSI SGR sequences, the engine-supplied timestamp
// prefix, and a single leading bracketed tag, then trims whitespace.
func cleanLine(raw string) string {
	line := ansiSGR.ReplaceAllString(raw, "")
	line = dockerTimestampPrefix.ReplaceAllString(line, "")
	line = bracketTagPrefix.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// classifySeverity applies the case-insensitive substring rules of §4.8.
func classifySeverity(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "exception"), strings.Contains(lower, "fatal"):
		return "error"
	case strings.Contains(lower, "warn"):
		return "warning"
	case strings.Contains(lower, "debug"):
		return "debug"
	default:
		return "info"
	}
}

// LogPipeline attaches to one instance's container output, classifies
// and republishes every line, appends it to a daily rotated file, and
// checks each line against a configured startup sentinel.
type LogPipeline struct {
	client    *Client
	bus       *eventbus.Bus
	logsRoot  string
	mu        sync.Mutex
	fileCache map[string]*os.File
}

func NewLogPipeline(client *Client, bus *eventbus.Bus, logsRoot string) *LogPipeline {
	return &LogPipeline{client: client, bus: bus, logsRoot: logsRoot, fileCache: make(map[string]*os.File)}
}

// Attach follows containerID's combined stdout+stderr stream until ctx is
// canceled, publishing and persisting every classified line. onLine, if
// non-nil, is additionally called with the cleaned message for sentinel
// matching by the lifecycle supervisor's start() flow.
func (p *LogPipeline) Attach(ctx context.Context, instanceID, containerID string, onLine func(message string)) error {
	reader, err := p.client.sdk.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
	})
	if err != nil {
		return apperr.NewEngineError("failed to attach to container logs", err)
	}

	go func() {
		defer reader.Close()

		pr, pw := io.Pipe()
		go func() {
			_, copyErr := stdcopy.StdCopy(pw, pw, reader)
			pw.CloseWithError(copyErr)
		}()

		scanLines(pr, func(raw string) {
			message := cleanLine(raw)
			if message == "" {
				return
			}
			record := LogRecord{Timestamp: time.Now().UTC(), Level: classifySeverity(message), Message: message}
			p.emit(instanceID, record)
			if onLine != nil {
				onLine(message)
			}
		})
	}()

	return nil
}

// EmitLine publishes and persists a single log line originating outside
// the container log stream itself - the install container's output
// (§4.6 step 4) and the lifecycle supervisor's own echo of an injected
// console command (§4.13) both go through here rather than Attach.
func (p *LogPipeline) EmitLine(instanceID, level, message string) {
	p.emit(instanceID, LogRecord{Timestamp: time.Now().UTC(), Level: level, Message: message})
}

func (p *LogPipeline) emit(instanceID string, record LogRecord) {
	p.bus.PublishLog(instanceID, eventbus.LogPayload{
		Timestamp: record.Timestamp.Format(time.RFC3339),
		Level:     record.Level,
		Message:   record.Message,
	})
	if err := p.appendToFile(instanceID, record); err != nil {
		p.client.logger.Warn("failed to append log record to file", "instance", instanceID, "error", err)
	}
}

// appendToFile writes record to <logsRoot>/<instanceID>/<YYYY-MM-DD>.log,
// opening (and caching) a new file handle whenever the day rolls over.
func (p *LogPipeline) appendToFile(instanceID string, record LogRecord) error {
	dir := filepath.Join(p.logsRoot, instanceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cacheKey := instanceID + "/" + record.Timestamp.Format("2006-01-02")

	p.mu.Lock()
	defer p.mu.Unlock()

	file, ok := p.fileCache[cacheKey]
	if !ok {
		path := filepath.Join(dir, record.Timestamp.Format("2006-01-02")+".log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		// evict any other cached handle for this instance; only one day's
		// file is ever open at a time per instance.
		for key, cached := range p.fileCache {
			if strings.HasPrefix(key, instanceID+"/") && key != cacheKey {
				cached.Close()
				delete(p.fileCache, key)
			}
		}
		p.fileCache[cacheKey] = f
		file = f
	}

	line := fmt.Sprintf("[%s] [%s] %s\n", record.Timestamp.Format(time.RFC3339), strings.ToUpper(record.Level), record.Message)
	_, err := file.WriteString(line)
	return err
}

// Close releases every open log file handle.
func (p *LogPipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, f := range p.fileCache {
		f.Close()
		delete(p.fileCache, key)
	}
}
