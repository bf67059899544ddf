package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"zapkit/internal/model"
)

// PendingStore keeps broadcast transactions in a JSON file so their outcome
// can be reported after the process that sent them exits. An empty path
// keeps them in memory only.
type PendingStore struct {
	path string
	now  func() time.Time

	mu  sync.Mutex
	txs map[string]model.PendingTx
}

type pendingFile struct {
	Transactions []model.PendingTx `json:"transactions"`
	UpdatedAt    string            `json:"updated_at"`
}

// OpenPendingStore loads the store at path, creating it on first write.
func OpenPendingStore(path string) (*PendingStore, error) {
	s := &PendingStore{path: path, now: time.Now, txs: make(map[string]model.PendingTx)}
	if path == "" {
		return s, nil
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("stat pending store: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("pending store path is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pending store: %w", err)
	}
	var file pendingFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pending store: %w", err)
	}
	for _, tx := range file.Transactions {
		s.txs[tx.Hash] = tx
	}
	return s, nil
}

// Put adds or replaces tx.
func (s *PendingStore) Put(tx model.PendingTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = s.now().UTC()
	}
	s.txs[tx.Hash] = tx
	return s.saveLocked()
}

// Resolve sets the status of hash. Unknown hashes are ignored.
func (s *PendingStore) Resolve(hash string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[hash]
	if !ok {
		return nil
	}
	tx.Status = status
	tx.UpdatedAt = s.now().UTC()
	s.txs[hash] = tx
	return s.saveLocked()
}

// List returns every transaction, oldest first.
func (s *PendingStore) List() []model.PendingTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Unsettled returns transactions still waiting for a receipt.
func (s *PendingStore) Unsettled() []model.PendingTx {
	var out []model.PendingTx
	for _, tx := range s.List() {
		if tx.Status == model.TxPending {
			out = append(out, tx)
		}
	}
	return out
}

// Prune drops settled transactions last updated before cutoff.
func (s *PendingStore) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, tx := range s.txs {
		if tx.Status != model.TxPending && tx.UpdatedAt.Before(cutoff) {
			delete(s.txs, hash)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveLocked()
}

func (s *PendingStore) listLocked() []model.PendingTx {
	out := make([]model.PendingTx, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

func (s *PendingStore) saveLocked() error {
	if s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pending store dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(pendingFile{
		Transactions: s.listLocked(),
		UpdatedAt:    s.now().UTC().Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pending store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write pending store tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename pending store: %w", err)
	}
	return nil
}
