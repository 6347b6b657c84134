package bookmarks

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/remi/internal/apperr"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/storage"
	"github.com/starford/remi/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newService(t *testing.T) (string, storage.Provider, *Service) {
	t.Helper()
	dir, fs := testutil.TestDataDir(t)
	svc, err := NewService(fs, quietLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return dir, fs, svc
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestNewService_MissingFileIsEmpty(t *testing.T) {
	_, _, svc := newService(t)
	if got := svc.List(); len(got) != 0 {
		t.Errorf("List = %+v", got)
	}
}

func TestAddWritesGemtext(t *testing.T) {
	_, fs, svc := newService(t)

	b, err := svc.Add("gemini://Example.org:1965/docs/", "Docs")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if b.URL != "gemini://example.org/docs/" {
		t.Errorf("url = %q, want canonical form", b.URL)
	}
	if _, err := svc.Add("gemini://other.example/", ""); err != nil {
		t.Fatalf("Add without label: %v", err)
	}

	data, err := fs.Read(FileName)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := "# Bookmarks\n\n=> gemini://example.org/docs/ Docs\n=> gemini://other.example/\n"
	if string(data) != want {
		t.Errorf("file =\n%s\nwant\n%s", data, want)
	}
}

func TestAdd_Duplicate(t *testing.T) {
	_, _, svc := newService(t)
	_, _ = svc.Add("gemini://example.org/", "One")
	_, err := svc.Add("gemini://EXAMPLE.org", "Two")
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("error = %v, want ErrAlreadyExists", err)
	}
}

func TestAdd_MultiLineLabelSurvivesRestart(t *testing.T) {
	_, fs, svc := newService(t)
	b, err := svc.Add("gemini://good.example/", "Good\n=> gemini://evil.example/ Injected")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if b.Label != "Good => gemini://evil.example/ Injected" {
		t.Errorf("label = %q", b.Label)
	}

	reopened, err := NewService(fs, quietLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	got := reopened.List()
	if len(got) != 1 || got[0] != b {
		t.Errorf("after restart = %+v, want [%+v]", got, b)
	}
}

func TestAdd_InvalidURL(t *testing.T) {
	_, _, svc := newService(t)
	if _, err := svc.Add("https://example.org/", ""); err == nil {
		t.Error("non-gemini URL should be refused")
	}
}

func TestRemove(t *testing.T) {
	_, _, svc := newService(t)
	_, _ = svc.Add("gemini://a.example/", "A")
	_, _ = svc.Add("gemini://b.example/", "B")

	if err := svc.Remove("gemini://a.example"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	list := svc.List()
	if len(list) != 1 || list[0].URL != "gemini://b.example/" {
		t.Errorf("List = %+v", list)
	}
	if err := svc.Remove("gemini://a.example/"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestReload_HandEditedFile(t *testing.T) {
	_, fs, svc := newService(t)
	content := "# My capsules\nSome prose.\n=> gemini://a.example/ Alpha\n=> https://web.example/ skipped\n* not a link\n=> gemini://a.example/ duplicate\n"
	if err := fs.Write(FileName, []byte(content)); err != nil {
		t.Fatal(err)
	}

	changed, err := svc.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload = %v, %v", changed, err)
	}
	list := svc.List()
	if len(list) != 1 || list[0].Label != "Alpha" {
		t.Errorf("List = %+v", list)
	}

	changed, _ = svc.Reload()
	if changed {
		t.Error("unchanged file should not report a change")
	}
}

func TestOnChange(t *testing.T) {
	_, _, svc := newService(t)
	var got [][]models.Bookmark
	svc.OnChange(func(b []models.Bookmark) { got = append(got, b) })

	_, _ = svc.Add("gemini://a.example/", "A")
	_ = svc.Remove("gemini://a.example/")
	if len(got) != 2 || len(got[0]) != 1 || len(got[1]) != 0 {
		t.Errorf("notifications = %+v", got)
	}
}

func TestWatch_ExternalEdit(t *testing.T) {
	dir, _, svc := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var calls int
	svc.OnChange(func([]models.Bookmark) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	go svc.Watch(ctx, dir)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, FileName), []byte("=> gemini://edited.example/ Edited\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		list := svc.List()
		return len(list) == 1 && list[0].URL == "gemini://edited.example/"
	}, "external edit not picked up by watcher")

	// A write made through the service must not be reported twice.
	_, _ = svc.Add("gemini://second.example/", "")
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("change notifications = %d, want 2", calls)
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir, _, svc := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	var mu sync.Mutex
	svc.OnChange(func([]models.Bookmark) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	go svc.Watch(ctx, dir)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "notes.gmi"), []byte(strings.Repeat("=> gemini://x.example/\n", 3)), 0o644)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("unrelated file triggered %d notifications", calls)
	}
}
