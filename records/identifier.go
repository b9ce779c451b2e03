package records

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

// PieceLength is the torrent piece size used for magnet identifiers.
const PieceLength = 256 * 1024

// FileHash returns the hex SHA-256 of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// InfoHash returns the BitTorrent v1 info-hash of a single-file torrent
// built from path.
func InfoHash(path string) (string, error) {
	info, err := fileInfo(path)
	if err != nil {
		return "", err
	}
	ih, err := hashInfo(info)
	if err != nil {
		return "", err
	}
	return ih.HexString(), nil
}

// MagnetURI returns a magnet link for the file at path.
func MagnetURI(path string) (string, error) {
	info, err := fileInfo(path)
	if err != nil {
		return "", err
	}
	ih, err := hashInfo(info)
	if err != nil {
		return "", fmt.Errorf("failed to compute info hash: %w", err)
	}
	m := metainfo.Magnet{InfoHash: ih, DisplayName: info.Name}
	return m.String(), nil
}

// fileInfo builds the single-file info dictionary with fixed piece length.
func fileInfo(path string) (*metainfo.Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	info := &metainfo.Info{
		Name:        filepath.Base(path),
		Length:      st.Size(),
		PieceLength: PieceLength,
	}
	err = info.GeneratePieces(func(metainfo.FileInfo) (io.ReadCloser, error) {
		return os.Open(path)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to hash pieces of %s: %w", path, err)
	}
	return info, nil
}

func hashInfo(info *metainfo.Info) (metainfo.Hash, error) {
	b, err := bencode.Marshal(info)
	if err != nil {
		return metainfo.Hash{}, fmt.Errorf("failed to encode info dictionary: %w", err)
	}
	return metainfo.HashBytes(b), nil
}
