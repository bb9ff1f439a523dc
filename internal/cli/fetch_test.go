package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadSourcesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.txt")
	body := `# consensus queries
https://dblp.org/search/publ/api?q=raft

https://dblp.org/search/publ/api?q=paxos
https://dblp.org/search/publ/api?q=raft
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	srcs, err := loadSourcesFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{
		"https://dblp.org/search/publ/api?q=raft",
		"https://dblp.org/search/publ/api?q=paxos",
	}
	if !reflect.DeepEqual(srcs, want) {
		t.Errorf("sources = %v, want %v", srcs, want)
	}
}

func TestLoadSourcesFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.txt")
	if err := os.WriteFile(path, []byte("# only comments\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadSourcesFile(path); err == nil {
		t.Fatal("expected error for file without sources")
	}
}

func TestLoadSourcesFileMissing(t *testing.T) {
	if _, err := loadSourcesFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDedupeSourcesKeepsOrder(t *testing.T) {
	got := dedupeSources([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedupe = %v, want %v", got, want)
	}
}
