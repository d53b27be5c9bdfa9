package bot

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestBareIdentity(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full address", "5511999999999@s.whatsapp.net", "5511999999999"},
		{"device suffix", "5511999999999:12@s.whatsapp.net", "5511999999999"},
		{"bare number", "5511999999999", "5511999999999"},
		{"bare with suffix", "5511999999999:3", "5511999999999"},
		{"group address", "1203630@g.us", "1203630"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BareIdentity(tt.in); got != tt.want {
				t.Errorf("BareIdentity(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnsureJID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare number", "5511999999999", "5511999999999@s.whatsapp.net"},
		{"already full", "5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net"},
		{"group passes through", "1203630@g.us", "1203630@g.us"},
		{"empty", "", ""},
		{"padded", "  5511999999999 ", "5511999999999@s.whatsapp.net"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsureJID(tt.in); got != tt.want {
				t.Errorf("EnsureJID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDigitsOnly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+55 11 9999-9999", "551199999999"},
		{"@5511999999999", "5511999999999"},
		{"no digits here", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := DigitsOnly(tt.in); got != tt.want {
				t.Errorf("DigitsOnly(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPolicyStore(t *testing.T) {
	t.Run("missing file seeds fallback owner", func(t *testing.T) {
		store := NewPolicyStore(filepath.Join(t.TempDir(), "access.json"))

		p, err := store.Load("5511999999999")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Owner != "5511999999999" {
			t.Errorf("expected fallback owner, got %q", p.Owner)
		}
		if len(p.Subadmins) != 0 {
			t.Errorf("expected no subadmins, got %v", p.Subadmins)
		}
	})

	t.Run("save and reload roundtrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "access.json")
		store := NewPolicyStore(path)

		in := AccessPolicy{
			Owner:     "1@s.whatsapp.net",
			Subadmins: []string{"2@s.whatsapp.net"},
		}
		if err := store.Save(in); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		out, err := store.Load("ignored")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if out.Owner != in.Owner {
			t.Errorf("owner = %q, want %q", out.Owner, in.Owner)
		}
		if len(out.Subadmins) != 1 || out.Subadmins[0] != "2@s.whatsapp.net" {
			t.Errorf("subadmins = %v", out.Subadmins)
		}
	})

	t.Run("saved file is owner-only readable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "access.json")
		store := NewPolicyStore(path)

		if err := store.Save(AccessPolicy{Owner: "1"}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("perm = %04o, want 0600", perm)
		}
	})

	t.Run("empty path is memory-only", func(t *testing.T) {
		store := NewPolicyStore("")

		if _, err := store.Load("owner"); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if err := store.Save(AccessPolicy{Owner: "owner"}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	})
}

func TestAccessManager(t *testing.T) {
	newManager := func(t *testing.T) *AccessManager {
		t.Helper()
		store := NewPolicyStore(filepath.Join(t.TempDir(), "access.json"))
		am, err := NewAccessManager(store, "5511999999999", testLogger())
		if err != nil {
			t.Fatalf("NewAccessManager failed: %v", err)
		}
		return am
	}

	t.Run("owner is authorized under any suffix", func(t *testing.T) {
		am := newManager(t)

		for _, sender := range []string{
			"5511999999999@s.whatsapp.net",
			"5511999999999:44@s.whatsapp.net",
			"5511999999999",
		} {
			if !am.IsAuthorized(sender) {
				t.Errorf("expected %q authorized", sender)
			}
			if !am.IsOwner(sender) {
				t.Errorf("expected %q to be owner", sender)
			}
		}
	})

	t.Run("stranger is not authorized", func(t *testing.T) {
		am := newManager(t)

		if am.IsAuthorized("447700900000@s.whatsapp.net") {
			t.Error("expected stranger unauthorized")
		}
	})

	t.Run("added subadmin becomes authorized but not owner", func(t *testing.T) {
		am := newManager(t)

		added, err := am.AddSubadmin("447700900000")
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if !added {
			t.Fatal("expected added=true")
		}

		if !am.IsAuthorized("447700900000:7@s.whatsapp.net") {
			t.Error("expected subadmin authorized under device suffix")
		}
		if am.IsOwner("447700900000") {
			t.Error("subadmin must not be owner")
		}
	})

	t.Run("adding twice reports already present", func(t *testing.T) {
		am := newManager(t)

		if added, _ := am.AddSubadmin("447700900000"); !added {
			t.Fatal("first add should succeed")
		}
		// Same identity under a different representation.
		added, err := am.AddSubadmin("447700900000:9@s.whatsapp.net")
		if err != nil {
			t.Fatalf("second add errored: %v", err)
		}
		if added {
			t.Error("expected added=false for duplicate")
		}
		if len(am.Subadmins()) != 1 {
			t.Errorf("subadmins = %v, want one entry", am.Subadmins())
		}
	})

	t.Run("remove revokes authorization and is idempotent", func(t *testing.T) {
		am := newManager(t)

		if _, err := am.AddSubadmin("447700900000"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if err := am.RemoveSubadmin("447700900000"); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if am.IsAuthorized("447700900000") {
			t.Error("expected removed subadmin unauthorized")
		}
		// Removing an absent identity is not an error.
		if err := am.RemoveSubadmin("447700900000"); err != nil {
			t.Errorf("second remove errored: %v", err)
		}
	})

	t.Run("mutations survive reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "access.json")
		store := NewPolicyStore(path)
		am, err := NewAccessManager(store, "5511999999999", testLogger())
		if err != nil {
			t.Fatalf("NewAccessManager failed: %v", err)
		}
		if _, err := am.AddSubadmin("447700900000"); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		reloaded, err := NewAccessManager(NewPolicyStore(path), "5511999999999", testLogger())
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if !reloaded.IsAuthorized("447700900000") {
			t.Error("expected subadmin authorized after reload")
		}
	})
}
