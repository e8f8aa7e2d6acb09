package media

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSplit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mkv")
	data := bytes.Repeat([]byte("0123456789"), 105) // 1050 bytes
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	parts, err := Split(context.Background(), path, 400)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}

	var joined []byte
	for i, p := range parts {
		if p.Index != i {
			t.Errorf("part %d has index %d", i, p.Index)
		}
		if p.Size > 400 {
			t.Errorf("part %d too large: %d", i, p.Size)
		}
		b, err := os.ReadFile(p.Path)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		joined = append(joined, b...)
	}
	if !bytes.Equal(joined, data) {
		t.Error("parts do not concatenate to the original")
	}
	if filepath.Base(parts[1].Path) != "movie.part001.mkv" {
		t.Errorf("unexpected part name %s", parts[1].Path)
	}

	RemoveParts(parts)
	if _, err := os.Stat(parts[0].Path); !os.IsNotExist(err) {
		t.Error("RemoveParts should delete files")
	}
}

func TestSplitExactMultiple(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	os.WriteFile(path, make([]byte, 800), 0o600)

	parts, err := Split(context.Background(), path, 400)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if _, err := os.Stat(PartName(path, 2)); !os.IsNotExist(err) {
		t.Error("empty trailing part should not be left behind")
	}
}

func TestSplitCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	os.WriteFile(path, make([]byte, 100), 0o600)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Split(ctx, path, 10); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("cancelled split left %d files", len(entries))
	}
}

func TestWorkspace(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(WorkspaceConfig{Dir: root, TTL: time.Hour}, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	job, err := ws.NewJob()
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	p := job.Path("../../etc/passwd")
	if filepath.Dir(p) != job.Dir {
		t.Errorf("Path escaped the job dir: %s", p)
	}
	os.WriteFile(p, []byte("x"), 0o600)

	old, _ := ws.NewJob()
	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(old.Dir, past, past)

	n, err := ws.DeleteExpired(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired = %d, %v", n, err)
	}
	if _, err := os.Stat(old.Dir); !os.IsNotExist(err) {
		t.Error("expired job should be removed")
	}
	if _, err := os.Stat(job.Dir); err != nil {
		t.Error("fresh job should survive")
	}

	job.Cleanup()
	if _, err := os.Stat(job.Dir); !os.IsNotExist(err) {
		t.Error("Cleanup should remove the job")
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1280,"height":720,"duration":"12.4"}],"format":{"duration":"62.6"}}`)
	md, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if md.Width != 1280 || md.Height != 720 || md.Duration != 63*time.Second {
		t.Errorf("parseProbe = %+v", md)
	}

	md, _ = parseProbe([]byte(`{"streams":[],"format":{}}`))
	if md != DefaultMetadata {
		t.Errorf("empty probe should yield defaults, got %+v", md)
	}
}

func TestProbeMissingFile(t *testing.T) {
	p := NewProber(ToolsConfig{}, nil)
	if md := p.Probe(context.Background(), "/nonexistent/file.mp4"); md != DefaultMetadata {
		t.Errorf("missing file should yield defaults, got %+v", md)
	}
}

func TestNames(t *testing.T) {
	if !IsVideo("clip.MKV") || !IsVideo("video/mp4") || IsVideo("doc.pdf") {
		t.Error("IsVideo misclassified")
	}
	if MIMEFromName("a.mp4") != "video/mp4" || MIMEFromName("noext") != "application/octet-stream" {
		t.Error("MIMEFromName mismatch")
	}
	if SanitizeFilename("a/b\x00c.txt") != "bc.txt" {
		t.Errorf("SanitizeFilename = %q", SanitizeFilename("a/b\x00c.txt"))
	}
	if ExtFromMIME("video/mp4") != ".mp4" {
		t.Error("ExtFromMIME mismatch")
	}
}
