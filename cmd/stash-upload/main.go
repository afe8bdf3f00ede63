// stash-upload sends files to a stash server and prints the returned URLs.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/pflag"

	"stash/internal/app"
	"stash/internal/core"
)

type client struct {
	http    *http.Client
	baseURL string
	field   string
}

// UploadFile posts path as a multipart upload and returns the file URL.
func (c *client) UploadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(c.field, filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out core.UploadResponse
	if err := c.post(ctx, "/upload", mw.FormDataContentType(), &body, &out); err != nil {
		return "", fmt.Errorf("failed to upload %q: %w", path, err)
	}
	return out.FileURL, nil
}

// UploadImage posts path as a JSON data URL and returns the file URL.
func (c *client) UploadImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}

	req := core.ImageUploadRequest{
		Image:    fmt.Sprintf("data:%s;base64,%s", mimetype.Detect(data).String(), base64.StdEncoding.EncodeToString(data)),
		Filename: filepath.Base(path),
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	var out core.ImageUploadResponse
	if err := c.post(ctx, "/upload-image", "application/json", bytes.NewReader(raw), &out); err != nil {
		return "", fmt.Errorf("failed to upload image %q: %w", path, err)
	}
	return out.URL, nil
}

func (c *client) post(ctx context.Context, route string, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+route, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure core.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil || failure.Error == "" {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return fmt.Errorf("server returned %s: %s", resp.Status, failure.Error)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func Run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("stash-upload", pflag.ContinueOnError)
	server := flags.String("server", "http://localhost:8888", "base URL of the stash server")
	field := flags.String("field", "file", "multipart form field name")
	image := flags.Bool("image", false, "send files as JSON data URLs to /upload-image")
	timeout := flags.Duration("timeout", time.Minute, "per-file request timeout")
	verbose := flags.BoolP("verbose", "v", false, "log each upload")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("no files given")
	}

	level := log.WarnLevel
	if *verbose {
		level = log.InfoLevel
	}
	app.SetupLogging(os.Stderr, level)

	c := &client{http: &http.Client{Timeout: *timeout}, baseURL: *server, field: *field}

	var errs []error
	for _, path := range flags.Args() {
		upload := c.UploadFile
		if *image {
			upload = c.UploadImage
		}

		fileURL, err := upload(ctx, path)
		if err != nil {
			slog.Error("Upload failed", "path", path, "err", err)
			errs = append(errs, err)
			continue
		}

		slog.Info("Uploaded", "path", path, "url", fileURL)
		fmt.Fprintln(stdout, fileURL)
	}

	return errors.Join(errs...)
}

func main() {
	if err := Run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
