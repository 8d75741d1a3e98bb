package collector

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, contents := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zw.Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(contents)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}
	return buf.Bytes()
}

func serveBytes(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
}

func TestCollectExtractsFiles(t *testing.T) {
	data := buildZip(t, map[string]string{
		"index.html":      "<html></html>",
		"assets/app.js":    "console.log(1)",
	})
	srv := serveBytes(t, data)
	defer srv.Close()

	workDir := t.TempDir()
	c := &Collector{}
	if err := c.Collect(context.Background(), srv.URL, workDir); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(workDir, "index.html"))
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	if string(got) != "<html></html>" {
		t.Errorf("index.html = %q", got)
	}
	got, err = os.ReadFile(filepath.Join(workDir, "assets", "app.js"))
	if err != nil {
		t.Fatalf("read assets/app.js: %v", err)
	}
	if string(got) != "console.log(1)" {
		t.Errorf("assets/app.js = %q", got)
	}
}

func TestCollectRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("../escape.txt")
	w.Write([]byte("evil"))
	zw.Close()

	srv := serveBytes(t, buf.Bytes())
	defer srv.Close()

	c := &Collector{}
	err := c.Collect(context.Background(), srv.URL, t.TempDir())
	if err == nil {
		t.Fatal("expected path-traversal rejection")
	}
}

func TestCollectRejectsNonZip(t *testing.T) {
	srv := serveBytes(t, []byte("not a zip file"))
	defer srv.Close()

	c := &Collector{}
	err := c.Collect(context.Background(), srv.URL, t.TempDir())
	if err == nil {
		t.Fatal("expected rejection of a non-zip download")
	}
}
