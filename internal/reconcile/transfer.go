package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"example.com/hybridtracker/internal/domain"
)

// Export writes the full local snapshot as an indented JSON document.
func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.store.GetAll(ctx)); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Import replaces the local snapshot with the document read from r. The
// document is parsed before confirmation is checked, so a malformed document
// is reported even when unconfirmed. On any error local data is untouched.
// A successful import goes through the normal write path and is pushed in
// the background.
func (e *Engine) Import(ctx context.Context, r io.Reader, confirmed bool) (int, error) {
	snapshot, err := decodeImport(r)
	if err != nil {
		return 0, err
	}
	if !confirmed {
		return 0, domain.ErrImportNotConfirmed
	}
	if err := e.store.PutAll(ctx, snapshot); err != nil {
		return 0, err
	}
	return len(snapshot), nil
}

func decodeImport(r io.Reader) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedImport, err)
	}
	if snapshot == nil {
		return nil, fmt.Errorf("%w: document is not an object", domain.ErrMalformedImport)
	}
	for key, rec := range snapshot {
		if rec.DateKey == "" {
			rec.DateKey = key
			snapshot[key] = rec
			continue
		}
		if rec.DateKey != key {
			return nil, fmt.Errorf("%w: %q stored under %q", domain.ErrMalformedImport, rec.DateKey, key)
		}
	}
	return snapshot, nil
}
