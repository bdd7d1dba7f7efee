// Package media resolves manual image descriptors to stored image files.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/time/rate"
)

// Code is the collaborator response code.
type Code string

const (
	CodeSuccess      Code = "SUCCESS"
	CodeDataNotFound Code = "DATA_NOT_FOUND"
)

// Content keys returned for every resolved image.
const (
	ContentURL  = "media_url"
	ContentType = "media_content_type"
	ContentSize = "media_file_size"
	ContentName = "file_name"
)

// Descriptor is the image reference found in a parsed manual.
type Descriptor struct {
	FilePath string `json:"file_path"`
	Size     string `json:"size,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// Request identifies one image inside one manual section.
type Request struct {
	ProductType string     `json:"product_type"`
	MainSection string     `json:"main_section"`
	SubSection  string     `json:"sub_section"`
	PartNo      string     `json:"part_no"`
	Image       Descriptor `json:"image"`
}

// Response is the resolution result. Content is nil unless Code is SUCCESS.
type Response struct {
	Code      Code           `json:"response_code"`
	ImageName string         `json:"image_name,omitempty"`
	Content   map[string]any `json:"image_content,omitempty"`
}

// FSStore resolves images against a directory tree laid out as
// <root>/<product>/<part_no>/<file>. A flat <root>/<file_path> is also tried.
type FSStore struct {
	root    string
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures an FSStore.
type Option func(*FSStore)

// WithBaseURL sets the URL prefix used for media_url.
func WithBaseURL(u string) Option {
	return func(s *FSStore) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithRate paces lookups to at most one every interval with the given burst.
func WithRate(interval time.Duration, burst int) Option {
	return func(s *FSStore) { s.limiter = rate.NewLimiter(rate.Every(interval), burst) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *FSStore) { s.logger = l }
}

// NewFSStore creates a store rooted at root.
func NewFSStore(root string, opts ...Option) *FSStore {
	s := &FSStore{
		root:    root,
		baseURL: "/media",
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ImageInformation looks the image up on disk. A missing file is reported
// as DATA_NOT_FOUND with a nil error; err is reserved for I/O and context
// failures.
func (s *FSStore) ImageInformation(ctx context.Context, req Request) (Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("media: wait: %w", err)
	}
	name := filepath.Base(filepath.FromSlash(strings.TrimSpace(req.Image.FilePath)))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return Response{Code: CodeDataNotFound}, nil
	}

	for _, rel := range s.candidates(req, name) {
		full := filepath.Join(s.root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Response{}, fmt.Errorf("media: stat %s: %w", full, err)
		}
		if info.IsDir() {
			continue
		}
		return Response{
			Code:      CodeSuccess,
			ImageName: name,
			Content: map[string]any{
				ContentName: name,
				ContentURL:  s.baseURL + "/" + rel,
				ContentType: contentType(req.Image.FileType, name),
				ContentSize: fileSize(req.Image.Size, info.Size()),
			},
		}, nil
	}
	s.logger.Debug("media: image not found", "part_no", req.PartNo, "file", name)
	return Response{Code: CodeDataNotFound}, nil
}

func (s *FSStore) candidates(req Request, name string) []string {
	product := slug(req.ProductType)
	var out []string
	if product != "" && req.PartNo != "" {
		out = append(out, path.Join(product, req.PartNo, name))
	}
	if req.PartNo != "" {
		out = append(out, path.Join(req.PartNo, name))
	}
	if p := strings.TrimLeft(filepath.ToSlash(req.Image.FilePath), "/"); p != "" && !strings.Contains(p, "..") {
		out = append(out, p)
	}
	return append(out, name)
}

func contentType(declared, name string) string {
	if declared != "" {
		if strings.Contains(declared, "/") {
			return declared
		}
		if t := mime.TypeByExtension("." + strings.TrimPrefix(declared, ".")); t != "" {
			return t
		}
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func fileSize(declared string, actual int64) int64 {
	if n, err := cast.ToInt64E(strings.TrimSpace(declared)); err == nil && n > 0 {
		return n
	}
	return actual
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
