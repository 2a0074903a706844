package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/sanitisium/internal/config"
	"github.com/yourusername/sanitisium/internal/jobs"
	"github.com/yourusername/sanitisium/internal/storage"
)

func setupJobs(cfg *config.Config) (*jobs.Manager, *storage.Storage, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)

	fileStorage, err := storage.New(cfg.PDFsDir)
	if err != nil {
		return nil, nil, err
	}

	runner := &jobs.ExecRunner{
		BinPath:   cfg.SanitiserBinPath,
		DPI:       cfg.RenderDPI,
		BatchSize: cfg.PageBatchSize,
		Quality:   cfg.JPEGQuality,
		Logger:    log.Default(),
	}
	notifier := &jobs.Notifier{
		Client: &http.Client{Timeout: time.Duration(cfg.CallbackTimeoutSeconds) * time.Second},
		Logger: log.Default(),
	}

	manager, err := jobs.NewManager(cfg, store, fileStorage, runner, notifier, log.Default())
	if err != nil {
		return nil, nil, err
	}
	return manager, fileStorage, nil
}

// submitHandler は POST /api/sanitise のハンドラーを返します。
// PDFを受け付けて検証し、サニタイズジョブをキューに投入します。
func submitHandler(cfg *config.Config, manager *jobs.Manager, fileStorage *storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data でPDFファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := form.File["file"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロードされたPDFファイルが見つかりません。",
			})
			return
		}
		header := files[0]

		if cfg.MaxFileSize > 0 && header.Size > cfg.MaxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", cfg.MaxFileSize),
			})
			return
		}

		successURL := c.PostForm("success_url")
		failureURL := c.PostForm("failure_url")
		if err := validateCallbackURL(successURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "success_url が不正です。",
			})
			return
		}
		if err := validateCallbackURL(failureURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "failure_url が不正です。",
			})
			return
		}

		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "アップロードファイルを開けませんでした。",
			})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "アップロードファイルを読み込めませんでした。",
			})
			return
		}

		// 拡張子ではなく中身でPDFかどうかを判定する
		if !mimetype.Detect(data).Is("application/pdf") {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "PDFファイルのみアップロードできます。",
			})
			return
		}

		pageCount, err := pdfapi.PageCount(bytes.NewReader(data), nil)
		if err != nil || pageCount < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "EMPTY_INPUT",
				"message": "ページのあるPDFをアップロードしてください。",
			})
			return
		}

		jobID := uuid.NewString()
		storedName := jobID + "_" + filepath.Base(header.Filename)
		if err := fileStorage.Store(storedName, data); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ファイルの保存に失敗しました。",
			})
			return
		}

		payload := &jobs.TaskPayload{
			JobID:      jobID,
			Filename:   storedName,
			SuccessURL: successURL,
			FailureURL: failureURL,
		}
		if err := manager.Enqueue(c.Request.Context(), payload); err != nil {
			if cleanupErr := fileStorage.Delete(storedName); cleanupErr != nil {
				log.Printf("could not clean up stored file. name=%s error=%v", storedName, cleanupErr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブの投入に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
	}
}

// jobStatusHandler は GET /api/jobs/:id のハンドラーを返します。
func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"status":    record.Status,
			"updatedAt": record.UpdatedAt,
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

func validateCallbackURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
