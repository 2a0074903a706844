package jobs

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/yourusername/sanitisium/internal/storage"
)

// fakeRecordStore はRecordStoreのインメモリ実装です。
type fakeRecordStore struct {
	records map[string]*Record
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: map[string]*Record{}}
}

func (s *fakeRecordStore) Get(ctx context.Context, jobID string) (*Record, error) {
	return s.records[jobID], nil
}

func (s *fakeRecordStore) Upsert(ctx context.Context, record *Record) error {
	s.records[record.JobID] = record
	return nil
}

func (s *fakeRecordStore) MarkProcessing(ctx context.Context, jobID string) error {
	s.records[jobID].Status = StatusProcessing
	return nil
}

func (s *fakeRecordStore) MarkSucceeded(ctx context.Context, jobID string) error {
	s.records[jobID].Status = StatusSucceeded
	return nil
}

func (s *fakeRecordStore) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	s.records[jobID].Status = StatusFailed
	s.records[jobID].Error = errInfo
	return nil
}

// fakeRunner は出力ファイルを書くだけのRunnerです。
type fakeRunner struct {
	err error
}

func (r *fakeRunner) Run(ctx context.Context, inputPath, outputPath string) error {
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(outputPath, []byte("%PDF-1.7 sanitized"), 0o644)
}

type callbackCounter struct {
	success int
	failure int
}

func newCallbackServers(t *testing.T, counter *callbackCounter) (successURL, failureURL string) {
	t.Helper()
	success := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.success++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(success.Close)
	failure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.failure++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(failure.Close)
	return success.URL, failure.URL
}

func newTestManager(t *testing.T, store RecordStore, runner Runner) (*Manager, *storage.Storage) {
	t.Helper()
	fileStorage, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	return &Manager{
		store:    store,
		storage:  fileStorage,
		runner:   runner,
		notifier: &Notifier{},
		logger:   log.New(os.Stderr, "", 0),
	}, fileStorage
}

func TestProcessJobSuccess(t *testing.T) {
	store := newFakeRecordStore()
	manager, fileStorage := newTestManager(t, store, &fakeRunner{})

	counter := &callbackCounter{}
	successURL, failureURL := newCallbackServers(t, counter)

	payload := &TaskPayload{
		JobID:      "job-1",
		Filename:   "job-1_input.pdf",
		SuccessURL: successURL,
		FailureURL: failureURL,
	}
	store.records[payload.JobID] = &Record{JobID: payload.JobID, Status: StatusQueued}
	if err := fileStorage.Store(payload.Filename, []byte("%PDF-1.7 dirty")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	manager.processJob(context.Background(), payload)

	if counter.success != 1 || counter.failure != 0 {
		t.Errorf("callbacks = %d success, %d failure; want exactly one success", counter.success, counter.failure)
	}
	if got := store.records[payload.JobID].Status; got != StatusSucceeded {
		t.Errorf("status = %q, want %q", got, StatusSucceeded)
	}
	if fileStorage.Exists(payload.Filename) {
		t.Error("input file was not deleted")
	}
	if fileStorage.Exists("processed_" + payload.Filename) {
		t.Error("output file was not deleted after delivery")
	}
}

func TestProcessJobRunFailure(t *testing.T) {
	store := newFakeRecordStore()
	runner := &fakeRunner{err: &RunError{Kind: RunFailed, Message: "再生成に失敗しました。"}}
	manager, fileStorage := newTestManager(t, store, runner)

	counter := &callbackCounter{}
	successURL, failureURL := newCallbackServers(t, counter)

	payload := &TaskPayload{
		JobID:      "job-2",
		Filename:   "job-2_input.pdf",
		SuccessURL: successURL,
		FailureURL: failureURL,
	}
	store.records[payload.JobID] = &Record{JobID: payload.JobID, Status: StatusQueued}
	if err := fileStorage.Store(payload.Filename, []byte("%PDF-1.7 dirty")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	manager.processJob(context.Background(), payload)

	if counter.success != 0 || counter.failure != 1 {
		t.Errorf("callbacks = %d success, %d failure; want exactly one failure", counter.success, counter.failure)
	}
	record := store.records[payload.JobID]
	if record.Status != StatusFailed {
		t.Errorf("status = %q, want %q", record.Status, StatusFailed)
	}
	if record.Error == nil || record.Error.Code != ErrCodeRegenerationFailed {
		t.Errorf("error = %+v, want code %q", record.Error, ErrCodeRegenerationFailed)
	}
	if fileStorage.Exists(payload.Filename) {
		t.Error("input file was not deleted after failure")
	}
}

func TestProcessJobCrashClassification(t *testing.T) {
	tests := []struct {
		name     string
		runErr   *RunError
		wantCode string
	}{
		{"crash", &RunError{Kind: RunCrashed, Message: "crashed"}, ErrCodeUnitCrashed},
		{"spawn", &RunError{Kind: RunSpawnFailed, Message: "spawn"}, ErrCodeUnitSpawnFailed},
		{"plain error", &RunError{Kind: RunFailed, Message: "failed"}, ErrCodeRegenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeRecordStore()
			manager, fileStorage := newTestManager(t, store, &fakeRunner{err: tt.runErr})

			counter := &callbackCounter{}
			successURL, failureURL := newCallbackServers(t, counter)
			payload := &TaskPayload{JobID: "job-x", Filename: "job-x.pdf", SuccessURL: successURL, FailureURL: failureURL}
			store.records[payload.JobID] = &Record{JobID: payload.JobID}
			if err := fileStorage.Store(payload.Filename, []byte("x")); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			manager.processJob(context.Background(), payload)

			record := store.records[payload.JobID]
			if record.Error == nil || record.Error.Code != tt.wantCode {
				t.Errorf("error code = %+v, want %q", record.Error, tt.wantCode)
			}
		})
	}
}

func TestProcessJobMissingInput(t *testing.T) {
	store := newFakeRecordStore()
	manager, _ := newTestManager(t, store, &fakeRunner{})

	counter := &callbackCounter{}
	successURL, failureURL := newCallbackServers(t, counter)
	payload := &TaskPayload{JobID: "job-3", Filename: "nope.pdf", SuccessURL: successURL, FailureURL: failureURL}
	store.records[payload.JobID] = &Record{JobID: payload.JobID}

	manager.processJob(context.Background(), payload)

	if counter.success != 0 || counter.failure != 1 {
		t.Errorf("callbacks = %d success, %d failure; want exactly one failure", counter.success, counter.failure)
	}
	if got := store.records[payload.JobID].Status; got != StatusFailed {
		t.Errorf("status = %q, want %q", got, StatusFailed)
	}
}

func TestProcessJobCallbackFailureIsBestEffort(t *testing.T) {
	store := newFakeRecordStore()
	manager, fileStorage := newTestManager(t, store, &fakeRunner{})

	payload := &TaskPayload{
		JobID:      "job-4",
		Filename:   "job-4.pdf",
		SuccessURL: "http://127.0.0.1:1/cb",
		FailureURL: "http://127.0.0.1:1/cb",
	}
	store.records[payload.JobID] = &Record{JobID: payload.JobID}
	if err := fileStorage.Store(payload.Filename, []byte("x")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	// コールバック先に到達できなくてもpanicせず、状態は更新されること
	manager.processJob(context.Background(), payload)

	if got := store.records[payload.JobID].Status; got != StatusSucceeded {
		t.Errorf("status = %q, want %q", got, StatusSucceeded)
	}
}

func TestRunUntilStoppedRejectsSecondCall(t *testing.T) {
	manager := &Manager{}
	if !manager.started.CompareAndSwap(false, true) {
		t.Fatal("fresh manager reports itself as already started")
	}

	if err := manager.RunUntilStopped(); err != ErrAlreadyStopped {
		t.Errorf("RunUntilStopped() error = %v, want ErrAlreadyStopped", err)
	}
}

func TestRunnerErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &RunError{Kind: RunCrashed, Message: "outer", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() did not find wrapped error")
	}
}
