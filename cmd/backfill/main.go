// Command backfill bulk-loads a directory of policy documents into a
// running ClauseMind API. It walks DOCS_DIR, uploads every .pdf and .txt
// file through the synchronous upload endpoint, and reports totals.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	apiURL := envOr("API_URL", "http://localhost:8080")
	docsDir := envOr("DOCS_DIR", "./docs")

	var paths []string
	err := filepath.WalkDir(docsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf", ".txt":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("walk %s: %v", docsDir, err)
	}
	log.Printf("Found %d documents under %s", len(paths), docsDir)

	client := &http.Client{Timeout: 5 * time.Minute}
	var uploaded, chunks, failed int

	for i, path := range paths {
		if ctx.Err() != nil {
			log.Printf("interrupted after %d of %d", i, len(paths))
			break
		}
		n, err := upload(ctx, client, apiURL, path)
		if err != nil {
			log.Printf("[%d] upload %s: %v", i, path, err)
			failed++
			continue
		}
		uploaded++
		chunks += n
		if uploaded%25 == 0 {
			log.Printf("Progress: %d uploaded, %d failed (of %d)", uploaded, failed, len(paths))
		}
	}

	log.Printf("Done! Uploaded: %d, Chunks indexed: %d, Failed: %d", uploaded, chunks, failed)
}

// upload posts one file to the synchronous upload endpoint and returns
// the number of chunks indexed.
func upload(ctx context.Context, client *http.Client, apiURL, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/upload_pdf", &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		ChunksIndexed int `json:"chunks_indexed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.ChunksIndexed, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
