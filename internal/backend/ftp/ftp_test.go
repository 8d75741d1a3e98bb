package ftp

import "testing"

func TestSplitPath(t *testing.T) {
	cases := []struct {
		path       string
		wantParent string
		wantName   string
	}{
		{"a/b/c", "a/b", "c"},
		{"/a", "/", "a"},
		{"file.txt", ".", "file.txt"},
		{"a/b/", "a", "b"},
	}
	for _, c := range cases {
		parent, name := splitPath(c.path)
		if parent != c.wantParent || name != c.wantName {
			t.Errorf("splitPath(%q) = (%q, %q), want (%q, %q)", c.path, parent, name, c.wantParent, c.wantName)
		}
	}
}

func TestParsePasvAddr(t *testing.T) {
	addr, err := parsePasvAddr("227 Entering Passive Mode (192,168,1,5,200,10)")
	if err != nil {
		t.Fatalf("parsePasvAddr returned error: %v", err)
	}
	want := "192.168.1.5:51210"
	if addr != want {
		t.Errorf("parsePasvAddr = %q, want %q", addr, want)
	}
}

func TestParsePasvAddrMalformed(t *testing.T) {
	if _, err := parsePasvAddr("227 nonsense"); err == nil {
		t.Error("expected error for malformed PASV response")
	}
}

func TestPrefixes(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{"a/b/c", []string{"a", "a/b"}},
		{"a", nil},
		{"", nil},
		{"a/b", []string{"a"}},
	}
	for _, c := range cases {
		got := prefixes(c.path)
		if len(got) != len(c.want) {
			t.Errorf("prefixes(%q) = %v, want %v", c.path, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("prefixes(%q) = %v, want %v", c.path, got, c.want)
				break
			}
		}
	}
}

func TestAddr(t *testing.T) {
	o := Options{Host: "ftp.example.com"}
	if got := o.addr(); got != "ftp.example.com:21" {
		t.Errorf("addr() = %q, want default port 21", got)
	}
	o.Port = 2121
	if got := o.addr(); got != "ftp.example.com:2121" {
		t.Errorf("addr() = %q, want explicit port 2121", got)
	}
}
