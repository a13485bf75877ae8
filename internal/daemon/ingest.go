package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ndaru/kirana/internal/store"
)

// ingestAll mirrors every configured watch directory into the document store
// and marks the index dirty when anything changed.
func (d *Daemon) ingestAll(ctx context.Context) error {
	changed := false

	for _, dir := range d.config.Knowledge.WatchDirs {
		dirty, err := d.ingestDir(ctx, dir.KBID, dir.Path)
		if err != nil {
			d.logger.Error().Err(err).Str("kb_id", dir.KBID).Str("path", dir.Path).Msg("Knowledge ingest failed")
			continue
		}
		changed = changed || dirty
	}

	if changed {
		d.index.MarkDirty()
	}

	return nil
}

// ingestDir upserts every document file under dir into the knowledge base
// and removes stored documents whose file disappeared. It reports whether
// anything changed.
func (d *Daemon) ingestDir(ctx context.Context, kbID, dir string) (bool, error) {
	existing, err := d.store.ListDocuments(ctx, kbID)
	if err != nil {
		return false, err
	}

	byPath := make(map[string]*store.Document, len(existing))
	for _, doc := range existing {
		byPath[doc.Path] = doc
	}

	changed := false
	seen := make(map[string]bool)

	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !isDocumentFile(path) {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		seen[relPath] = true

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		hash := contentHash(content)
		if prev, ok := byPath[relPath]; ok && prev.ContentHash == hash {
			return nil
		}

		if err := d.store.UpsertDocument(ctx, &store.Document{
			KBID:        kbID,
			Path:        relPath,
			Content:     string(content),
			ContentHash: hash,
		}); err != nil {
			return err
		}

		changed = true
		return nil
	})
	if err != nil {
		return changed, err
	}

	// Drop documents whose backing file is gone
	for path, doc := range byPath {
		if seen[path] {
			continue
		}
		if err := d.store.DeleteDocument(ctx, doc.ID); err != nil {
			d.logger.Error().Err(err).Str("doc_id", doc.ID).Msg("Failed to delete stale document")
			continue
		}
		changed = true
	}

	if changed {
		d.logger.Info().Str("kb_id", kbID).Str("dir", dir).Int("files", len(seen)).Msg("Knowledge base ingested")
	}

	return changed, nil
}

func isDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		return true
	}
	return false
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
