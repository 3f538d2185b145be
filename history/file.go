package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sky-flux/tutor"
)

const (
	sessionsDir = "sessions"
	roundsFile  = "rounds.jsonl"
)

// FileStore keeps snapshots as dir/sessions/<id>.json and rounds as
// dir/rounds.jsonl.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// OpenFileStore creates dir if needed and returns a store rooted there.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, sessionsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) sessionPath(id uuid.UUID) string {
	return filepath.Join(s.dir, sessionsDir, id.String()+".json")
}

// SaveSession writes the snapshot through a temporary file and a rename,
// so readers never see a partial file.
func (s *FileStore) SaveSession(ctx context.Context, snap tutor.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return fmt.Errorf("%w: id %q", tutor.ErrInvalidSnapshot, snap.ID)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionPath(id)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LoadSession reads a snapshot. A missing file returns ErrNotFound.
func (s *FileStore) LoadSession(ctx context.Context, id uuid.UUID) (tutor.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return tutor.Snapshot{}, err
	}
	s.mu.Lock()
	data, err := os.ReadFile(s.sessionPath(id))
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return tutor.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return tutor.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap tutor.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return tutor.Snapshot{}, fmt.Errorf("%w: %v", tutor.ErrInvalidSnapshot, err)
	}
	return snap, nil
}

// Sessions lists the ids of stored snapshots in lexical order.
func (s *FileStore) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries, err := os.ReadDir(filepath.Join(s.dir, sessionsDir))
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []uuid.UUID
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		if id, err := uuid.Parse(name); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// AppendRound appends one JSON line to rounds.jsonl.
func (s *FileStore) AppendRound(ctx context.Context, r Round) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.validate(); err != nil {
		return err
	}
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode round: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, roundsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open rounds log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append round: %w", err)
	}
	return f.Close()
}

// RecentRounds reads the last n rounds of rounds.jsonl. Malformed lines are
// skipped. A missing log yields no rounds.
func (s *FileStore) RecentRounds(ctx context.Context, n int) ([]Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, roundsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open rounds log: %w", err)
	}
	defer f.Close()

	var rounds []Round
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r Round
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		rounds = append(rounds, r)
		if len(rounds) > n {
			rounds = rounds[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read rounds log: %w", err)
	}
	return rounds, nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
