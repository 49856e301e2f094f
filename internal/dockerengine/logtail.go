package dockerengine

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// defaultTailLines is getLogs's default when the caller requests no
// explicit count, per §6.
const defaultTailLines = 100

// TailLogs returns up to lines most recent log records for instanceID,
// reading backward from the newest daily log file under logsRoot until
// enough lines are collected or every file has been read. lines <= 0
// means defaultTailLines.
func TailLogs(logsRoot, instanceID string, lines int) ([]LogRecord, error) {
	if lines <= 0 {
		lines = defaultTailLines
	}

	dir := filepath.Join(logsRoot, instanceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var collected []LogRecord
	for _, name := range names {
		records, err := readLogFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		collected = append(records, collected...)
		if len(collected) >= lines {
			break
		}
	}

	if len(collected) > lines {
		collected = collected[len(collected)-lines:]
	}
	return collected, nil
}

// readLogFile parses every line written by LogPipeline.appendToFile's
// "[<iso-ts>] [<LEVEL>] <msg>" format back into LogRecords.
func readLogFile(path string) ([]LogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []LogRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if record, ok := parseLogLine(scanner.Text()); ok {
			out = append(out, record)
		}
	}
	return out, scanner.Err()
}

func parseLogLine(line string) (LogRecord, bool) {
	if !strings.HasPrefix(line, "[") {
		return LogRecord{}, false
	}
	tsEnd := strings.Index(line, "] [")
	if tsEnd < 0 {
		return LogRecord{}, false
	}
	ts, err := time.Parse(time.RFC3339, line[1:tsEnd])
	if err != nil {
		return LogRecord{}, false
	}
	rest := line[tsEnd+3:]
	levelEnd := strings.Index(rest, "] ")
	if levelEnd < 0 {
		return LogRecord{}, false
	}
	level := strings.ToLower(rest[:levelEnd])
	message := rest[levelEnd+2:]
	return LogRecord{Timestamp: ts, Level: level, Message: message}, true
}
