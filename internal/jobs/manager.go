package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/hibiken/asynq"

	"github.com/yourusername/sanitisium/internal/config"
	"github.com/yourusername/sanitisium/internal/storage"
)

const (
	taskTypeSanitise = "pdf:sanitise"
	queueName        = "sanitise"
)

// 失敗コールバックとジョブ記録に載せるエラーコード。
const (
	ErrCodeRegenerationFailed = "REGENERATION_FAILED"
	ErrCodeUnitCrashed        = "ISOLATED_UNIT_CRASHED"
	ErrCodeUnitSpawnFailed    = "ISOLATED_UNIT_SPAWN_FAILED"
)

// ErrAlreadyStopped は RunUntilStopped の2回目以降の呼び出しで返されます。
var ErrAlreadyStopped = errors.New("worker pool has already been started")

// RecordStore はジョブ状態ストアの操作を抽象化します。
type RecordStore interface {
	Get(ctx context.Context, jobID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	MarkProcessing(ctx context.Context, jobID string) error
	MarkSucceeded(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error
}

// TaskPayload はサニタイズジョブのペイロードです。
type TaskPayload struct {
	JobID      string `json:"jobId"`
	Filename   string `json:"filename"`
	SuccessURL string `json:"successUrl"`
	FailureURL string `json:"failureUrl"`
}

// Manager はジョブの投入とワーカープールの運転を担います。
type Manager struct {
	cfg      *config.Config
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    RecordStore
	storage  *storage.Storage
	runner   Runner
	notifier *Notifier
	logger   *log.Logger
	started  atomic.Bool
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, store RecordStore, fileStorage *storage.Storage, runner Runner, notifier *Notifier, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if fileStorage == nil {
		return nil, errors.New("storage is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if notifier == nil {
		return nil, errors.New("notifier is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:      cfg,
		client:   client,
		server:   server,
		mux:      mux,
		store:    store,
		storage:  fileStorage,
		runner:   runner,
		notifier: notifier,
		logger:   logger,
	}
	mux.HandleFunc(taskTypeSanitise, manager.handleSanitiseTask)
	return manager, nil
}

// Enqueue はジョブをキューに投入します。
// 同じペイロードが二度実行されないよう、リトライは行いません。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) error {
	if payload == nil {
		return fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return fmt.Errorf("payload.JobID is required")
	}

	record := &Record{
		JobID:      payload.JobID,
		Filename:   payload.Filename,
		SuccessURL: payload.SuccessURL,
		FailureURL: payload.FailureURL,
		Status:     StatusQueued,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskTypeSanitise, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return err
	}
	m.logger.Printf("job enqueued. job=%s filename=%s", payload.JobID, payload.Filename)
	return nil
}

// RunUntilStopped はワーカープールを起動し、停止するまでブロックします。
// 2回目以降の呼び出しは ErrAlreadyStopped を返します。
func (m *Manager) RunUntilStopped() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStopped
	}
	if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleSanitiseTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		m.logger.Printf("could not decode task payload: %v", err)
		return nil
	}
	if payload.JobID == "" {
		m.logger.Printf("task payload is missing jobId")
		return nil
	}

	m.processJob(ctx, &payload)
	// コールバックで結果を届け済みなので、asynqにはリトライさせない
	return nil
}

// processJob は1件のジョブを実行します。
// 成功コールバックと失敗コールバックは合わせてちょうど1回だけ送られます。
func (m *Manager) processJob(ctx context.Context, payload *TaskPayload) {
	reported := false
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("panic while processing job. job=%s panic=%v", payload.JobID, r)
			if !reported {
				m.reportFailure(ctx, payload, ErrCodeRegenerationFailed, "ジョブの処理中に内部エラーが発生しました。")
			}
		}
	}()

	if err := m.store.MarkProcessing(ctx, payload.JobID); err != nil {
		m.logger.Printf("could not mark job as processing. job=%s error=%v", payload.JobID, err)
	}

	inputPath := m.storage.Path(payload.Filename)
	outputName := "processed_" + payload.Filename
	outputPath := m.storage.Path(outputName)

	if !m.storage.Exists(payload.Filename) {
		reported = true
		m.reportFailure(ctx, payload, ErrCodeRegenerationFailed, "入力ファイルが見つかりませんでした。")
		return
	}

	runErr := m.runner.Run(ctx, inputPath, outputPath)

	// 入力は結果にかかわらず削除する
	if err := m.storage.Delete(payload.Filename); err != nil {
		m.logger.Printf("could not delete input file. job=%s error=%v", payload.JobID, err)
	}

	if runErr != nil {
		reported = true
		code := ErrCodeRegenerationFailed
		switch KindOfRunError(runErr) {
		case RunCrashed:
			code = ErrCodeUnitCrashed
		case RunSpawnFailed:
			code = ErrCodeUnitSpawnFailed
		}
		m.reportFailure(ctx, payload, code, runErr.Error())
		return
	}

	reported = true
	m.reportSuccess(ctx, payload, outputName, outputPath)
}

func (m *Manager) reportSuccess(ctx context.Context, payload *TaskPayload, outputName, outputPath string) {
	if err := m.store.MarkSucceeded(ctx, payload.JobID); err != nil {
		m.logger.Printf("could not mark job as succeeded. job=%s error=%v", payload.JobID, err)
	}
	if err := m.notifier.NotifySuccess(ctx, payload.JobID, payload.SuccessURL, outputPath); err != nil {
		m.logger.Printf("could not deliver success callback. job=%s error=%v", payload.JobID, err)
	}
	if err := m.storage.Delete(outputName); err != nil {
		m.logger.Printf("could not delete output file. job=%s error=%v", payload.JobID, err)
	}
	m.logger.Printf("job succeeded. job=%s", payload.JobID)
}

func (m *Manager) reportFailure(ctx context.Context, payload *TaskPayload, code, message string) {
	if err := m.store.MarkFailed(ctx, payload.JobID, &ErrorInfo{Code: code, Message: message}); err != nil {
		m.logger.Printf("could not mark job as failed. job=%s error=%v", payload.JobID, err)
	}
	if err := m.notifier.NotifyFailure(ctx, payload.JobID, payload.FailureURL, message); err != nil {
		m.logger.Printf("could not deliver failure callback. job=%s error=%v", payload.JobID, err)
	}
	m.logger.Printf("job failed. job=%s code=%s", payload.JobID, code)
}
