// Package storage はジョブの入出力ファイルを置くローカルストレージを提供します。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage はベースディレクトリ配下にファイルを保存するローカルストレージです。
type Storage struct {
	baseDir string
}

// New はベースディレクトリを作成してStorageを返します。
func New(baseDir string) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ストレージディレクトリを作成できませんでした: %w", err)
	}
	return &Storage{baseDir: baseDir}, nil
}

// BaseDir はベースディレクトリを返します。
func (s *Storage) BaseDir() string {
	return s.baseDir
}

// Path はストレージ内の名前をフルパスに解決します。
func (s *Storage) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// Store はデータを保存します。一時ファイルに書いてからリネームするので、
// 読み手から見えるのは常に完全なファイルだけです。
func (s *Storage) Store(name string, data []byte) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".store-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Read はファイルの内容を読み込みます。
func (s *Storage) Read(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Exists はファイルの有無を返します。
func (s *Storage) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// Delete はファイルを削除します。
func (s *Storage) Delete(name string) error {
	return os.Remove(s.Path(name))
}
