package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hyperjump/cordsearch/internal/models"
)

const (
	fileMagic   = "CSVT"
	fileVersion = uint32(1)
	// maxPrealloc bounds slice preallocation from an untrusted header.
	maxPrealloc = 1 << 20
	// maxDimensions bounds the per-row buffer allocated from an untrusted header.
	maxDimensions = 1 << 16
)

// Save writes the table to path atomically (temp file + rename). Directory is created if needed.
// Format: magic (4), version (4), generation len (4) + bytes, dimension (4), n (4),
// then per row: id len (4), id bytes, vector (dimension*4 bytes). Little endian.
func (t *Table) Save(path string) error {
	if path == "" {
		return fmt.Errorf("vector table path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := t.encode(w); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("flush vector file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close vector file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename vector file: %w", err)
	}
	return nil
}

func (t *Table) encode(w io.Writer) error {
	if _, err := w.Write([]byte(fileMagic)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, fileVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := writeString(w, t.generation); err != nil {
		return fmt.Errorf("write generation: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(t.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(t.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, vec := range t.vectors {
		if err := writeString(w, t.ID(i)); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads a table written by Save. A missing, truncated, or malformed file yields ErrData.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: vector cache %s does not exist", models.ErrData, path)
		}
		return nil, fmt.Errorf("%w: open vector cache: %v", models.ErrData, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat vector cache: %v", models.ErrData, err)
	}
	t, err := decode(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: vector cache %s: %v", models.ErrData, path, err)
	}
	return t, nil
}

// decode reads a table from r. size is the total encoded length and bounds what the
// header may claim.
func decode(r io.Reader, size int64) (*Table, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != fileMagic {
		return nil, errors.New("not a vector cache file")
	}
	var version, dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	generation, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read generation: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if n > 0 && dim == 0 {
		return nil, errors.New("zero dimension with non-empty table")
	}
	if dim > maxDimensions {
		return nil, fmt.Errorf("dimension %d exceeds limit %d", dim, maxDimensions)
	}
	if int64(n)*int64(dim)*4 > size {
		return nil, fmt.Errorf("header claims %d vectors of dimension %d, file has %d bytes", n, dim, size)
	}
	capHint := int(n)
	if capHint > maxPrealloc {
		capHint = maxPrealloc
	}
	ids := make([]string, 0, capHint)
	vectors := make([][]float32, 0, capHint)
	buf := make([]byte, int(dim)*4)
	withIDs := false
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read id %d: %w", i, err)
		}
		if id != "" {
			withIDs = true
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	t := &Table{generation: generation, dimensions: int(dim), vectors: vectors}
	if n == 0 {
		t.dimensions = 0
	}
	if withIDs {
		t.ids = ids
	}
	return t, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 4096 {
		return "", fmt.Errorf("string length %d too large", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
