package batch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnumerateFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "z.PNG", "b.jpeg", "a.Webp", "c.txt", "d.pdf", "e.BMP", "noext")
	if err := os.Mkdir(filepath.Join(dir, "dir.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	l, err := Enumerate(dir, false)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if l.TotalFiles != 8 {
		t.Errorf("total files: got %d, want 8", l.TotalFiles)
	}
	var names []string
	for _, tk := range l.Tasks {
		names = append(names, tk.Name)
		if tk.Page != 0 {
			t.Errorf("%s: unexpected page %d", tk.Name, tk.Page)
		}
		if tk.Path != filepath.Join(dir, tk.Name) {
			t.Errorf("%s: path %s", tk.Name, tk.Path)
		}
		if tk.SizeBytes != int64(len("img:"+tk.Name)) {
			t.Errorf("%s: size %d", tk.Name, tk.SizeBytes)
		}
	}
	want := []string{"a.Webp", "b.jpeg", "e.BMP", "z.PNG"}
	if len(names) != len(want) {
		t.Fatalf("tasks: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("tasks: got %v, want %v", names, want)
		}
	}
}

func TestEnumerateSkipsUnreadablePDF(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "broken.pdf", "scan.png")

	l, err := Enumerate(dir, true)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(l.Tasks) != 1 || l.Tasks[0].Name != "scan.png" {
		t.Errorf("tasks: %+v", l.Tasks)
	}
}

func TestEnumerateErrors(t *testing.T) {
	if _, err := Enumerate(filepath.Join(t.TempDir(), "missing"), false); !errors.Is(err, ErrDirectory) {
		t.Errorf("missing dir: got %v", err)
	}

	f := filepath.Join(t.TempDir(), "file.png")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Enumerate(f, false); !errors.Is(err, ErrDirectory) {
		t.Errorf("file as dir: got %v", err)
	}
}

func TestOutcomeVariants(t *testing.T) {
	ok := Success("text")
	if !ok.OK() || ok.Text() != "text" || ok.Reason() != "" || ok.Body() != "text" {
		t.Errorf("success: %+v", ok)
	}
	bad := Failure("Request timeout after 2m0s")
	if bad.OK() || bad.Text() != "" || bad.Body() != "ERROR: Request timeout after 2m0s" {
		t.Errorf("failure: %+v", bad)
	}
	// a successful OCR text that happens to start with ERROR is still a success
	if !Success("ERROR 404 printed on the page").OK() {
		t.Error("success must not be inferred from text")
	}
}
