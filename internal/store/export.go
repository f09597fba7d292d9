package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Export writes every completed session to w as zstd-compressed JSON lines
// and returns how many were written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	sessions, err := s.Completed(ctx)
	if err != nil {
		return 0, err
	}

	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}
	enc := json.NewEncoder(encoder)
	for i := range sessions {
		if err := enc.Encode(&sessions[i]); err != nil {
			encoder.Close()
			return 0, fmt.Errorf("compress: %w", err)
		}
	}
	if err := encoder.Close(); err != nil {
		return 0, fmt.Errorf("finalize compression: %w", err)
	}
	return len(sessions), nil
}

// ReadExport decodes an archive written by Export.
func ReadExport(r io.Reader) ([]Session, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	var out []Session
	dec := json.NewDecoder(decoder)
	for {
		var sess Session
		if err := dec.Decode(&sess); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
		out = append(out, sess)
	}
}
