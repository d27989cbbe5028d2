package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/dsstar/internal/session"
)

type describeFunc func(ctx context.Context, req Request) (session.FileDescription, error)

func (f describeFunc) Describe(ctx context.Context, req Request) (session.FileDescription, error) {
	return f(ctx, req)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()

	var csv strings.Builder
	for i := range 100 {
		fmt.Fprintf(&csv, "%d,row\n", i)
	}
	csvPath := writeFile(t, dir, "data.csv", csv.String())
	binPath := writeFile(t, dir, "data.parquet", strings.Repeat("b", 100))

	tests := []struct {
		name  string
		path  string
		lines int
		bytes int
		want  string
	}{
		{
			name:  "line limit",
			path:  csvPath,
			lines: 3,
			bytes: 5000,
			want:  "0,row\n1,row\n2,row",
		},
		{
			name:  "byte limit stops after the crossing line",
			path:  csvPath,
			lines: 50,
			bytes: 7,
			want:  "0,row\n1,row",
		},
		{
			name:  "binary prefix",
			path:  binPath,
			lines: 50,
			bytes: 10,
			want:  strings.Repeat("b", 10),
		},
		{
			name:  "missing",
			path:  filepath.Join(dir, "nope.csv"),
			lines: 50,
			bytes: 5000,
			want:  "[File not found: " + filepath.Join(dir, "nope.csv") + "]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.path, tt.lines, tt.bytes); got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalyze_SetsPathAndSize(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.csv", "x,y\n1,2\n")

	var gotReq Request
	a := New(describeFunc(func(_ context.Context, req Request) (session.FileDescription, error) {
		gotReq = req
		bogus := int64(999)
		return session.FileDescription{Path: "wrong", FileType: "csv", SizeBytes: &bogus}, nil
	}), DefaultConfig())

	fd, err := a.Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if fd.Path != path {
		t.Errorf("Path = %q, want %q", fd.Path, path)
	}
	if fd.SizeBytes == nil || *fd.SizeBytes != 8 {
		t.Errorf("SizeBytes = %v, want 8", fd.SizeBytes)
	}
	if gotReq.Extension != ".csv" || gotReq.SizeBytes != 8 || gotReq.Preview != "x,y\n1,2" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestAnalyzeAll_DropsFailures(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 6 {
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("f%d.csv", i), "a\n"))
	}

	a := New(describeFunc(func(_ context.Context, req Request) (session.FileDescription, error) {
		if strings.HasSuffix(req.Path, "f2.csv") || strings.HasSuffix(req.Path, "f4.csv") {
			return session.FileDescription{}, fmt.Errorf("model refused")
		}
		return session.FileDescription{FileType: "csv"}, nil
	}), DefaultConfig())

	got := a.AnalyzeAll(context.Background(), paths)
	if len(got) != 4 {
		t.Fatalf("AnalyzeAll() returned %d descriptions, want 4", len(got))
	}

	var names []string
	for _, fd := range got {
		names = append(names, filepath.Base(fd.Path))
	}
	sort.Strings(names)
	want := []string{"f0.csv", "f1.csv", "f3.csv", "f5.csv"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}
}

func TestAnalyzeAll_RespectsConcurrency(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 12 {
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("f%d.txt", i), "a\n"))
	}

	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	a := New(describeFunc(func(_ context.Context, _ Request) (session.FileDescription, error) {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return session.FileDescription{FileType: "txt"}, nil
	}), Config{Concurrency: 3, PreviewLines: 5, PreviewBytes: 100})

	got := a.AnalyzeAll(context.Background(), paths)
	if len(got) != len(paths) {
		t.Errorf("AnalyzeAll() returned %d, want %d", len(got), len(paths))
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
	if inFlight.Load() != 0 {
		t.Error("AnalyzeAll() returned before every task settled")
	}
}

func TestAnalyzeAll_Empty(t *testing.T) {
	a := New(describeFunc(func(context.Context, Request) (session.FileDescription, error) {
		t.Fatal("describer should not be called")
		return session.FileDescription{}, nil
	}), DefaultConfig())
	if got := a.AnalyzeAll(context.Background(), nil); len(got) != 0 {
		t.Errorf("AnalyzeAll(nil) = %v", got)
	}
}
