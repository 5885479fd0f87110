package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/snapseek/internal/models"
)

// MemoryIndex is an in-memory index using exact brute-force cosine search.
// Suitable for tests, development and small collections; it can be snapshotted
// to a file with Save and restored with Load.
type MemoryIndex struct {
	dimensions int
	records    []*models.IndexedImage
	byKey      map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		records:    make([]*models.IndexedImage, 0),
		byKey:      make(map[string]int),
	}, nil
}

// Key returns the composite key of an (owner, path) pair.
func Key(ownerID, sourcePath string) string {
	return ownerID + "\x00" + sourcePath
}

// FindByOwnerAndPath returns the record for the pair or ErrNotFound.
func (m *MemoryIndex) FindByOwnerAndPath(ctx context.Context, ownerID, sourcePath string) (*models.IndexedImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byKey[Key(ownerID, sourcePath)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneImage(m.records[i]), nil
}

// Insert appends img, or returns ErrDuplicateKey if the pair is already present.
func (m *MemoryIndex) Insert(ctx context.Context, img *models.IndexedImage) error {
	if err := CheckVector(img.Embedding, m.dimensions); err != nil {
		return err
	}
	key := Key(img.OwnerID, img.SourcePath)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[key]; ok {
		return ErrDuplicateKey
	}
	m.byKey[key] = len(m.records)
	m.records = append(m.records, cloneImage(img))
	return nil
}

// NearestNeighbors scores every record against q.Vector and returns the top q.Limit.
func (m *MemoryIndex) NearestNeighbors(ctx context.Context, q Query) ([]*Neighbor, error) {
	if err := CheckVector(q.Vector, m.dimensions); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Neighbor, 0, len(m.records))
	for i, rec := range m.records {
		if q.OwnerID != "" && rec.OwnerID != q.OwnerID {
			continue
		}
		out = append(out, &Neighbor{
			SourcePath: rec.SourcePath,
			OwnerID:    rec.OwnerID,
			Score:      CosineSimilarity(q.Vector, rec.Embedding),
			Seq:        uint64(i),
		})
	}
	return Rank(out, q.Limit), nil
}

// Size returns the number of records in the index.
func (m *MemoryIndex) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// Save persists the index to path. Directory is created if needed. Format: dimension (4), n (4),
// then per record: id, owner and path as length-prefixed strings, created_at unix nanos (8),
// vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := m.writeTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, rec := range m.records {
		for _, s := range []string{rec.ID, rec.OwnerID, rec.SourcePath} {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, rec.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("write created_at: %w", err)
		}
		if _, err := w.Write(Float32SliceToBytes(rec.Embedding)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	records := make([]*models.IndexedImage, 0, n)
	byKey := make(map[string]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var fields [3]string
		for j := range fields {
			if fields[j], err = readString(f); err != nil {
				return err
			}
		}
		var created int64
		if err := binary.Read(f, binary.LittleEndian, &created); err != nil {
			return fmt.Errorf("read created_at: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		rec := &models.IndexedImage{
			ID:         fields[0],
			OwnerID:    fields[1],
			SourcePath: fields[2],
			CreatedAt:  time.Unix(0, created).UTC(),
			Embedding:  BytesToFloat32Slice(buf),
		}
		byKey[Key(rec.OwnerID, rec.SourcePath)] = len(records)
		records = append(records, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.byKey = byKey
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write string len: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("read string len: %w", err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(b), nil
}

// Float32SliceToBytes encodes s as little-endian float32s.
func Float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// BytesToFloat32Slice decodes little-endian float32s. The result does not alias b.
func BytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

func cloneImage(img *models.IndexedImage) *models.IndexedImage {
	c := *img
	c.Embedding = make([]float32, len(img.Embedding))
	copy(c.Embedding, img.Embedding)
	return &c
}
