package dockerengine

import (
	"bufio"
	"io"
	"sort"
)

func sortStrings(items []string) {
	sort.Strings(items)
}

// scanLines reads r line by line until EOF, calling onLine for each line
// with its trailing newline stripped. read errors other than EOF are
// swallowed: a broken log stream mid-read should not crash the caller,
// it just stops seeing further lines.
func scanLines(r io.Reader, onLine func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
}
