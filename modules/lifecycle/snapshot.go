package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/realtime-chat/domain/chat"
)

// decodeSnapshot parses a room -> messages document. Records that fail
// validation are skipped and counted rather than failing the whole file.
func decodeSnapshot(data []byte) (map[string][]chat.Message, int, error) {
	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	rooms := make(map[string][]chat.Message, len(raw))
	skipped := 0
	for room, records := range raw {
		msgs := make([]chat.Message, 0, len(records))
		for _, rec := range records {
			var m chat.Message
			if err := json.Unmarshal(rec, &m); err != nil {
				skipped++
				continue
			}
			msgs = append(msgs, m)
		}
		if len(msgs) > 0 {
			rooms[room] = msgs
		}
	}
	return rooms, skipped, nil
}

// writeFileAtomic writes data to a temporary file next to path, syncs it
// and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}
