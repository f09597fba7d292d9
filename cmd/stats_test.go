package cmd

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fakeyudi/focuspet/internal/server"
	"github.com/fakeyudi/focuspet/internal/store"
)

// seedDatabase points FOCUSPET_DATABASE_URL at a fresh SQLite file holding
// one completed session.
func seedDatabase(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(isolate(t), "sessions.db")
	t.Setenv("FOCUSPET_DATABASE_URL", path)

	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	start := time.Now().Add(-time.Hour)
	pct := 82.0
	if err := db.CreateSession(ctx, "done", start); err != nil {
		t.Fatal(err)
	}
	if _, err := db.EndSession(ctx, "done", start.Add(25*time.Minute), &pct); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestStatsFromBackend(t *testing.T) {
	db := seedDatabase(t)
	ts := httptest.NewServer(server.New(db, nil).Router())
	defer ts.Close()
	t.Setenv("FOCUSPET_API_URL", ts.URL)
	rootCmd.ResetFlags()

	out, err := executeCommand(rootCmd, "stats", "--local=false")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"Sessions: 1 (", "Focus time: 25m0s", "Average session: 25.0 min", "82% average, 82% best"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatsLocal(t *testing.T) {
	seedDatabase(t)
	t.Setenv("FOCUSPET_API_URL", "http://127.0.0.1:1") // must not be contacted
	rootCmd.ResetFlags()

	out, err := executeCommand(rootCmd, "stats", "--local")
	if err != nil {
		t.Fatalf("stats --local: %v", err)
	}
	if !strings.Contains(out, "Sessions: 1") {
		t.Errorf("output: %q", out)
	}
}

func TestExportWritesArchive(t *testing.T) {
	seedDatabase(t)
	archive := filepath.Join(t.TempDir(), "out.jsonl.zst")
	rootCmd.ResetFlags()

	out, err := executeCommand(rootCmd, "export", "--out", archive)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "Exported 1 sessions") {
		t.Errorf("output: %q", out)
	}

	f, err := os.Open(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sessions, err := store.ReadExport(f)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "done" {
		t.Errorf("archive: %+v", sessions)
	}
}
