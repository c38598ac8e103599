package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"

	"jobgate/internal/errcode"
)

// FileScanner rejects malicious uploads.
type FileScanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// ClamdScanner scans uploads through a clamd daemon.
type ClamdScanner struct {
	client *clamd.Clamd
}

func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

func (s *ClamdScanner) Scan(_ context.Context, r io.Reader) error {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := s.client.ScanStream(r, abortChan)
	if err != nil {
		return errcode.Wrap(errcode.KindPersistence, "failed to scan file", err)
	}
	for result := range scanChan {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			return errcode.Validation("malicious file detected")
		default:
			return errcode.Wrap(errcode.KindPersistence, "failed to scan file",
				fmt.Errorf("clamd status %s: %s", result.Status, result.Description))
		}
	}
	return nil
}

var (
	cvExtensions      = map[string]bool{".pdf": true, ".doc": true, ".docx": true, ".txt": true}
	documentExtension = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true}
	imageExtensions   = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}
)

// uploadGuard bounds and scans multipart files before they reach storage.
type uploadGuard struct {
	scanner  FileScanner
	maxBytes int64
}

// receive returns the multipart file in field, or nil when the request carries none.
func (g uploadGuard) receive(c *gin.Context, field string, allowed map[string]bool) (*multipart.FileHeader, error) {
	file, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, errcode.Validation(fmt.Sprintf("invalid %s upload", field))
	}
	if file.Size <= 0 {
		return nil, errcode.Validation(fmt.Sprintf("%s is empty", field))
	}
	if g.maxBytes > 0 && file.Size > g.maxBytes {
		return nil, errcode.Validation(fmt.Sprintf("%s exceeds %d bytes", field, g.maxBytes))
	}
	if ext := strings.ToLower(filepath.Ext(file.Filename)); !allowed[ext] {
		return nil, errcode.Validation(fmt.Sprintf("unsupported %s file type %q", field, ext))
	}

	if g.scanner != nil {
		reader, err := file.Open()
		if err != nil {
			return nil, errcode.Wrap(errcode.KindPersistence, "failed to open file", err)
		}
		err = g.scanner.Scan(c.Request.Context(), reader)
		reader.Close()
		if err != nil {
			return nil, err
		}
	}
	return file, nil
}

func contentTypeOf(file *multipart.FileHeader) string {
	if ct := file.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
