package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
)

// Notifier はジョブの結果をコールバックURLへHTTPで届けます。
type Notifier struct {
	Client *http.Client
	Logger *log.Logger
}

// NotifySuccess はサニタイズ済みPDFのバイト列を成功URLへPOSTします。
func (n *Notifier) NotifySuccess(ctx context.Context, jobID, url, outputPath string) error {
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return fmt.Errorf("出力ファイルを読み込めませんでした: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Job-Id", jobID)

	resp, err := n.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("コールバック先が %d を返しました。", resp.StatusCode)
	}
	if n.Logger != nil {
		n.Logger.Printf("success callback delivered. job=%s bytes=%d", jobID, len(data))
	}
	return nil
}

// NotifyFailure はエラーメッセージを失敗URLへJSONでPOSTします。
func (n *Notifier) NotifyFailure(ctx context.Context, jobID, url, message string) error {
	body, err := json.Marshal(map[string]string{
		"jobId": jobID,
		"error": message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Id", jobID)

	resp, err := n.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("コールバック先が %d を返しました。", resp.StatusCode)
	}
	if n.Logger != nil {
		n.Logger.Printf("failure callback delivered. job=%s", jobID)
	}
	return nil
}

func (n *Notifier) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return http.DefaultClient
}
