package profile

import (
	"path/filepath"
	"slices"
	"testing"
)

func TestDirLayout(t *testing.T) {
	base := "/tmp/tchat-test"
	got := CacheDBPath(base, "user-1")
	want := filepath.Join(base, "profiles", "user-1", "cache.db")
	if got != want {
		t.Errorf("CacheDBPath = %q, want %q", got, want)
	}
}

func TestEnsureDirAndList(t *testing.T) {
	base := t.TempDir()

	if err := EnsureDir(base, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDir(base, "bob"); err != nil {
		t.Fatal(err)
	}

	ids, err := List(base)
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"alice", "bob"}) {
		t.Errorf("List = %v, want [alice bob]", ids)
	}
}

func TestListMissingBase(t *testing.T) {
	ids, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List = %v, want empty", ids)
	}
}

func TestValidateID(t *testing.T) {
	valid := []string{"65f1c2", "user_1", "A-b-C"}
	for _, id := range valid {
		if err := ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q) = %v, want nil", id, err)
		}
	}
	invalid := []string{"", "a/b", "..", "has space"}
	for _, id := range invalid {
		if err := ValidateID(id); err == nil {
			t.Errorf("ValidateID(%q) = nil, want error", id)
		}
	}
}
