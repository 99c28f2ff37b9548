package chunkfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/sim/grid"
)

// Entity tag for block lines. Chunk files may also carry lines for other entities
// (trees, rocks); those are skipped.
const tagBlock = "block"

// Store keeps one text file per chunk under a directory. File contents are cached;
// the disk copy is always written first.
type Store struct {
	dir   string
	cache *ristretto.Cache[string, []byte]
}

func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("empty chunk dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create chunk dir")
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1 << 16,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "chunk cache")
	}
	return &Store{dir: dir, cache: cache}, nil
}

func (s *Store) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

func (s *Store) Path(k grid.ChunkKey) string {
	return filepath.Join(s.dir, fmt.Sprintf("chunk_%d_%d.txt", k.CX, k.CY))
}

// Load returns the blocks stored for k. ok is false when the chunk was never saved.
func (s *Store) Load(k grid.ChunkKey) (blocks []blocktext.Placed, ok bool, err error) {
	raw, ok, err := s.read(k)
	if err != nil || !ok {
		return nil, ok, err
	}
	blocks, err = Parse(raw)
	if err != nil {
		return nil, true, errors.Wrapf(err, "chunk %s", k)
	}
	return blocks, true, nil
}

func (s *Store) read(k grid.ChunkKey) ([]byte, bool, error) {
	key := k.String()
	if raw, hit := s.cache.Get(key); hit {
		return raw, true, nil
	}
	raw, err := os.ReadFile(s.Path(k))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read chunk %s", k)
	}
	s.cache.Set(key, raw, int64(len(raw))+1)
	return raw, true, nil
}

// Save replaces the chunk file for k with blocks.
func (s *Store) Save(k grid.ChunkKey, blocks []blocktext.Placed) error {
	raw := Format(blocks)
	path := s.Path(k)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write chunk %s", k)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "write chunk %s", k)
	}
	key := k.String()
	s.cache.Del(key)
	s.cache.Set(key, raw, int64(len(raw))+1)
	s.cache.Wait()
	return nil
}

// Format renders blocks as chunk file lines.
func Format(blocks []blocktext.Placed) []byte {
	var buf bytes.Buffer
	for _, p := range blocks {
		buf.WriteString(tagBlock)
		buf.WriteByte(' ')
		buf.WriteString(blocktext.Encode(p))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Parse reads the block lines of a chunk file.
func Parse(raw []byte) ([]blocktext.Placed, error) {
	var out []blocktext.Placed
	sc := bufio.NewScanner(bytes.NewReader(raw))
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tag, rest, _ := strings.Cut(line, " ")
		if tag != tagBlock {
			continue
		}
		p, err := blocktext.Decode(rest)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan chunk")
	}
	return out, nil
}
