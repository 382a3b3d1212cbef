package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// FetchModel downloads url to path unless path already exists. The file is
// written to a temporary name first so an interrupted download never leaves
// a truncated model behind.
func FetchModel(ctx context.Context, client *http.Client, url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if url == "" {
		return fmt.Errorf("model file %s not found and no download URL configured", path)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build model request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ONNXSource locates an ONNX model and its runtime.
type ONNXSource struct {
	ModelPath    string
	MetadataPath string
	ModelURL     string
	LibraryPath  string
	HTTPClient   *http.Client
}

// Loader returns a LoadFunc that fetches the model if needed and opens an
// ONNX Runtime session.
func (s ONNXSource) Loader() LoadFunc {
	return func(ctx context.Context) (Backend, Metadata, error) {
		if err := FetchModel(ctx, s.HTTPClient, s.ModelURL, s.ModelPath); err != nil {
			return nil, Metadata{}, err
		}
		metadata, err := ReadMetadata(s.MetadataPath)
		if err != nil {
			return nil, Metadata{}, err
		}
		server, err := NewServer(s.ModelPath, metadata, s.LibraryPath)
		if err != nil {
			return nil, Metadata{}, err
		}
		return server, metadata, nil
	}
}
