package maintenance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/concierge/internal/db"
	"github.com/zulandar/concierge/internal/messaging"
	"github.com/zulandar/concierge/internal/models"
	"gorm.io/datatypes"
)

type fakeStore struct {
	imported  int
	pruned    int64
	repaired  int
	importErr error
	pruneErr  error
	repairErr error
	calls     []string
}

func (f *fakeStore) ImportAllLegacy(ctx context.Context) (int, error) {
	f.calls = append(f.calls, "import")
	return f.imported, f.importErr
}

func (f *fakeStore) PruneAll(ctx context.Context) (int64, error) {
	f.calls = append(f.calls, "prune")
	return f.pruned, f.pruneErr
}

func (f *fakeStore) RepairSummaries(ctx context.Context) (int, error) {
	f.calls = append(f.calls, "repair")
	return f.repaired, f.repairErr
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, "* * * * *", nil); err == nil {
		t.Error("expected error for nil store")
	}
	_, err := New(&fakeStore{}, "every tuesday", nil)
	if err == nil {
		t.Fatal("expected error for bad schedule")
	}
	if !strings.Contains(err.Error(), `maintenance: schedule "every tuesday"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNextRun(t *testing.T) {
	s, err := New(&fakeStore{}, "*/15 * * * *", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	from := time.Date(2026, 10, 17, 9, 7, 0, 0, time.UTC)
	want := time.Date(2026, 10, 17, 9, 15, 0, 0, time.UTC)
	if got := s.NextRun(from); !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestRunOnce_AllSteps(t *testing.T) {
	store := &fakeStore{imported: 4, pruned: 12, repaired: 1}
	s, _ := New(store, "* * * * *", nil)

	res := s.RunOnce(context.Background())
	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if res.Imported != 4 || res.Pruned != 12 || res.Repaired != 1 {
		t.Errorf("result = %+v", res)
	}
	if strings.Join(store.calls, ",") != "import,prune,repair" {
		t.Errorf("calls = %v", store.calls)
	}
}

func TestRunOnce_ContinuesAfterFailure(t *testing.T) {
	store := &fakeStore{
		importErr: errors.New("conversation 3 changed during import"),
		pruned:    2,
		repairErr: errors.New("db gone"),
	}
	s, _ := New(store, "* * * * *", nil)

	res := s.RunOnce(context.Background())
	if len(store.calls) != 3 {
		t.Errorf("calls = %v, want all three steps", store.calls)
	}
	if res.Pruned != 2 {
		t.Errorf("Pruned = %d, want 2", res.Pruned)
	}
	if res.Err == nil {
		t.Fatal("expected joined error")
	}
	msg := res.Err.Error()
	if !strings.Contains(msg, "import legacy:") || !strings.Contains(msg, "repair summaries:") {
		t.Errorf("error = %q", msg)
	}
	if !errors.Is(res.Err, store.repairErr) {
		t.Error("joined error should wrap repair error")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := New(&fakeStore{}, "0 3 * * *", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// blockingStore holds the import step open until release is closed.
type blockingStore struct {
	fakeStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) ImportAllLegacy(ctx context.Context) (int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return 0, nil
}

func TestStart_WaitsForInFlightSweep(t *testing.T) {
	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	s, _ := New(store, "* * * * *", nil)
	s.schedule = cron.Every(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)

	select {
	case <-store.started:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep never started")
	}
	cancel()

	select {
	case <-done:
		t.Fatal("Start finished while a sweep was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not finish after the sweep completed")
	}
}

func TestRunOnce_AgainstService(t *testing.T) {
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	svc, err := messaging.NewService(messaging.Options{DB: gormDB, MaxRetained: 2})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	conv := models.Conversation{
		CustomerName:  "Ayse",
		CustomerPhone: "+905551234567",
		Messages: datatypes.JSON(`[
			{"message":"a","createdAt":"2026-10-16T10:00:00Z"},
			{"message":"b","createdAt":"2026-10-16T11:00:00Z"},
			{"message":"c","createdAt":"2026-10-16T12:00:00Z"}
		]`),
	}
	if err := gormDB.Create(&conv).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	s, _ := New(svc, "* * * * *", nil)
	res := s.RunOnce(context.Background())
	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if res.Imported != 3 {
		t.Errorf("Imported = %d, want 3", res.Imported)
	}

	msgs, err := svc.Messages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages after sweep = %d, want 2 (cap)", len(msgs))
	}
}
