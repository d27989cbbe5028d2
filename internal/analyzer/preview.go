package analyzer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// textExtensions are previewed line by line; everything else is previewed
// as a raw byte prefix.
var textExtensions = map[string]bool{
	".csv":  true,
	".txt":  true,
	".md":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".xml":  true,
}

// Preview returns the head of the file at path for an analysis prompt.
// Text files yield at most maxLines lines, stopping once maxBytes bytes have
// been consumed. Other files yield their first maxBytes bytes.
func Preview(path string, maxLines, maxBytes int) string {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Sprintf("[File not found: %s]", path)
		}
		return fmt.Sprintf("[Error reading file: %v]", err)
	}
	defer func() { _ = f.Close() }()

	if textExtensions[strings.ToLower(filepath.Ext(path))] {
		return previewLines(f, maxLines, maxBytes)
	}

	buf := make([]byte, maxBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Sprintf("[Error reading file: %v]", err)
	}
	return strings.ToValidUTF8(string(buf[:n]), "�")
}

func previewLines(r io.Reader, maxLines, maxBytes int) string {
	br := bufio.NewReader(r)
	var lines []string
	consumed := 0
	for len(lines) < maxLines && consumed < maxBytes {
		line, err := br.ReadString('\n')
		if line != "" {
			consumed += len(line)
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			break
		}
	}
	return strings.ToValidUTF8(strings.Join(lines, "\n"), "�")
}
