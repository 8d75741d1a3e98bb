package listparser

import "testing"

func TestParseUnixLines(t *testing.T) {
	cases := []struct {
		line string
		want Entry
	}{
		{
			line: "drwxr-xr-x   2 user     group        4096 Jan 15 12:34 somedir",
			want: Entry{Type: TypeDir, Name: "somedir"},
		},
		{
			line: "-rw-r--r--   1 user     group         123 Jan 15 12:34 somefile.txt",
			want: Entry{Type: TypeFile, Name: "somefile.txt"},
		},
		{
			line: "-rw-r--r--   1 user     group         123 Jan 15  2019 file with spaces.txt",
			want: Entry{Type: TypeFile, Name: "file with spaces.txt"},
		},
		{
			line: "drwxrwxrwx   3 user     group         4096 Mar  3  2021 another dir",
			want: Entry{Type: TypeDir, Name: "another dir"},
		},
	}
	for _, c := range cases {
		got, err := Parse(c.line)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", c.line, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestParseMSDOSLines(t *testing.T) {
	cases := []struct {
		line string
		want Entry
	}{
		{
			line: "01-15-21  12:34PM       <DIR>          somedir",
			want: Entry{Type: TypeDir, Name: "somedir"},
		},
		{
			line: "01-15-21  12:34PM                  123 somefile.txt",
			want: Entry{Type: TypeFile, Name: "somefile.txt"},
		},
	}
	for _, c := range cases {
		got, err := Parse(c.line)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", c.line, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestParseUnrecognized(t *testing.T) {
	_, err := Parse("total 42")
	if err == nil {
		t.Fatal("expected LineFormatError for unrecognized line, got nil")
	}
	var lfe *LineFormatError
	if _, ok := err.(*LineFormatError); !ok {
		t.Fatalf("expected *LineFormatError, got %T", err)
	}
	_ = lfe
}

func TestParseAllSkipsBlankLines(t *testing.T) {
	lines := []string{
		"",
		"-rw-r--r--   1 user     group         123 Jan 15 12:34 a.txt",
		"",
		"drwxr-xr-x   2 user     group        4096 Jan 15 12:34 b",
	}
	entries, err := ParseAll(lines)
	if err != nil {
		t.Fatalf("ParseAll returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "a.txt" || entries[0].Type != TypeFile {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Name != "b" || entries[1].Type != TypeDir {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestParseAllStopsAtFirstError(t *testing.T) {
	lines := []string{
		"-rw-r--r--   1 user     group         123 Jan 15 12:34 a.txt",
		"not a valid line",
	}
	entries, err := ParseAll(lines)
	if err == nil {
		t.Fatal("expected error from unrecognized line")
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry parsed before the error, got %d", len(entries))
	}
}
