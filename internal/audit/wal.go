package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WALStore — файловый recovery-лог: один json-файл на несброшенную критическую
// запись, имя файла = ID записи. Выживает рестарт процесса; файл удаляется
// только после успешной записи в durable store.
type WALStore struct {
	dir string
}

func NewWALStore(dir string) (*WALStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	return &WALStore{dir: dir}, nil
}

func (w *WALStore) path(id string) string {
	return filepath.Join(w.dir, id+".json")
}

// Write синхронно сериализует запись на диск c fsync — только после этого
// событие считается принятым (write-ahead шаг).
func (w *WALStore) Write(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("wal: marshal %s: %w", e.ID, err)
	}

	f, err := os.OpenFile(w.path(e.ID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open %s: %w", e.ID, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("wal: write %s: %w", e.ID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("wal: sync %s: %w", e.ID, err)
	}
	return f.Close()
}

// Remove удаляет запись после подтвержденной персистентности. Отсутствие файла не ошибка.
func (w *WALStore) Remove(id string) error {
	if err := os.Remove(w.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wal: remove %s: %w", id, err)
	}
	return nil
}

// LoadAll читает все оставшиеся записи — это несброшенная работа прошлого запуска.
// Битые файлы пропускаются (запись уже могла попасть в store до падения).
func (w *WALStore) LoadAll() ([]Entry, error) {
	files, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(w.dir, f.Name()))
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil || e.ID == "" {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
