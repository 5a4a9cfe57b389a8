package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// SnapshotVersion is the scene file format version written by SaveSnapshot.
const SnapshotVersion = 1

// Snapshot is the serialized form of a document.
type Snapshot struct {
	Version  int       `json:"version"`
	DarkMode bool      `json:"darkMode,omitempty"`
	Elements []Element `json:"elements"`
	Assets   []Asset   `json:"assets,omitempty"`
}

// Snapshot captures the current document state.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		Version:  SnapshotVersion,
		DarkMode: d.IsDarkMode(),
		Elements: d.Elements(),
		Assets:   d.Assets(),
	}
}

// Replace makes the document match snap in a single transaction. Elements
// are diffed by ID so listeners see only what actually changed.
func (d *Document) Replace(source Source, snap Snapshot) error {
	d.SetDarkMode(snap.DarkMode)
	return d.Apply(source, func(tx *Tx) error {
		want := make(map[ID]bool, len(snap.Elements))
		order := make([]ID, 0, len(snap.Elements))
		for _, el := range snap.Elements {
			if el.ID == "" {
				return fmt.Errorf("%w: snapshot element without id", ErrInvalid)
			}
			if want[el.ID] {
				return fmt.Errorf("%w: duplicate id %s", ErrInvalid, el.ID)
			}
			want[el.ID] = true
			order = append(order, el.ID)
		}
		for _, id := range append([]ID(nil), tx.doc.order...) {
			if !want[id] {
				tx.remember(id)
				delete(tx.doc.elements, id)
				tx.doc.order = removeID(tx.doc.order, id)
			}
		}
		for _, el := range snap.Elements {
			cur, ok := tx.doc.elements[el.ID]
			switch {
			case !ok:
				if _, err := tx.Create(el); err != nil {
					return err
				}
			case !reflect.DeepEqual(cur, el):
				next := el.Clone()
				if err := tx.Update(el.ID, func(e *Element) { *e = next }); err != nil {
					return err
				}
			}
		}
		tx.doc.order = order
		for _, a := range snap.Assets {
			cur, ok := tx.doc.assets[a.ID]
			if ok && cur == a {
				continue
			}
			tx.rememberAsset(a.ID)
			tx.doc.assets[a.ID] = a
			tx.assetsOut = append(tx.assetsOut, a.ID)
		}
		return nil
	})
}

// LoadDocument reads a scene file into a new document.
func LoadDocument(path string) (*Document, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	d := NewDocument()
	if err := d.Replace(SourceSystem, snap); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return d, nil
}

// LoadSnapshot reads a scene file. Files ending in ".zst" are zstd
// compressed JSON; anything else is plain JSON.
func LoadSnapshot(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to open scene: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if isCompressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return DecodeSnapshot(r)
}

// DecodeSnapshot parses a JSON snapshot.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode scene: %w", err)
	}
	if snap.Version > SnapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported scene version %d", snap.Version)
	}
	return snap, nil
}

// SaveSnapshot writes snap to path, compressing when path ends in ".zst".
// The file is replaced atomically.
func SaveSnapshot(path string, snap Snapshot) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode scene: %w", err)
	}

	data := buf.Bytes()
	if isCompressed(path) {
		zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		data = zw.EncodeAll(data, nil)
		zw.Close()
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scene: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace scene: %w", err)
	}
	return nil
}

func isCompressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}
