// Package notes ingests a directory of text notes as semantic memories.
package notes

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/enrich"
	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/pkg/types"
)

const noteConfidence = 0.7

var extensions = map[string]bool{".txt": true, ".md": true}

// Ingester stores one memory.
type Ingester interface {
	Ingest(ctx context.Context, in types.IngestInput) (int64, error)
}

// Ingest walks root and stores every .txt and .md file. root must sit inside
// one of allowed once symlinks are resolved. Symlinked notes whose target
// leaves the allow list are skipped. It returns the number of files stored.
func Ingest(ctx context.Context, root string, allowed []string, ing Ingester, client *enrich.Safe, logger *log.Logger) (int, error) {
	absRoot, err := resolve(root)
	if err != nil {
		return 0, goerr.Wrap(errs.ErrInvalidConfig, "resolve notes root", goerr.V("root", root), goerr.V("cause", err.Error()))
	}
	if !withinAny(absRoot, allowed) {
		return 0, goerr.Wrap(errs.ErrPermissionDenied, "directory is not in the allow list", goerr.V("root", absRoot))
	}

	count := 0
	conf := noteConfidence
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := resolve(path)
			if err != nil || !withinAny(target, allowed) {
				logger.Warn("skipping note linked outside the allow list", "path", path)
				return nil
			}
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		text := string(body)
		if strings.TrimSpace(text) == "" {
			logger.Debug("skipping empty note", "path", path)
			return nil
		}
		if _, err := ing.Ingest(ctx, types.IngestInput{
			Kind:       string(types.KindSemantic),
			Content:    text,
			Source:     path,
			Confidence: &conf,
			Topic:      strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
		}); err != nil {
			return err
		}
		if client != nil {
			client.Ingest(ctx, text, map[string]string{"source": path})
		}
		count++
		return nil
	})
	if walkErr != nil {
		return count, goerr.Wrap(walkErr, "ingest notes", goerr.V("root", absRoot), goerr.V("ingested", count))
	}
	logger.Info("ingested notes", "count", count, "root", absRoot)
	return count, nil
}

func withinAny(path string, allowed []string) bool {
	for _, a := range allowed {
		if strings.TrimSpace(a) == "" {
			continue
		}
		abs, err := resolve(a)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// resolve returns the absolute path of p with symlinks evaluated. A path that
// does not exist yet is returned as its absolute form.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return abs, nil
	}
	if err != nil {
		return "", err
	}
	return resolved, nil
}
