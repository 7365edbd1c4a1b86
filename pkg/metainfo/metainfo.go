// Package metainfo reads .torrent files and magnet links far enough to
// drive peer connections: the info-hash, the file layout and the piece
// hashes.
package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"os"

	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

var ErrInvalidMetainfo = errors.New("invalid metainfo")

// File is one entry of a multi-file torrent.
type File struct {
	Length int64
	Path   []string
}

// Info is the decoded info dictionary.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      []byte
	// Length is set for single file torrents, Files for multi-file ones.
	Length  int64
	Files   []File
	Private bool
}

// Metainfo is a parsed .torrent file.
type Metainfo struct {
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
	CreationDate int64
	Info         Info
	InfoHash     peer.Hash
	// InfoBytes is the exact encoded info dictionary as it appeared in
	// the file.
	InfoBytes []byte
}

// Load reads and parses a .torrent file.
func Load(path string, opts bencode.DecodeOptions) (*Metainfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data, opts)
}

// Parse decodes a .torrent file. The info-hash is the SHA-1 of the info
// dictionary's original bytes, so unsorted or otherwise non-canonical
// files still hash the way other clients hash them.
func Parse(data []byte, opts bencode.DecodeOptions) (*Metainfo, error) {
	root, err := bencode.DecodeWithOptions(data, opts)
	if err != nil {
		return nil, err
	}

	dict, ok := root.Dict()
	if !ok {
		return nil, fmt.Errorf("%w: top level is %s", ErrInvalidMetainfo, root.Kind())
	}

	infoValue, ok := dict.Lookup([]byte("info"))
	if !ok {
		return nil, fmt.Errorf("%w: missing info dictionary", ErrInvalidMetainfo)
	}

	infoRef, ok := infoValue.(*bencode.Ref)
	if !ok {
		return nil, fmt.Errorf("%w: info is not a decoded value", ErrInvalidMetainfo)
	}

	info, err := infoFromValue(infoRef)
	if err != nil {
		return nil, err
	}

	raw := infoRef.Raw()

	mi := &Metainfo{
		Info:      *info,
		InfoHash:  sha1.Sum(raw),
		InfoBytes: append([]byte(nil), raw...),
	}

	mi.Announce, _ = bencode.LookupStr(dict, "announce")
	mi.Comment, _ = bencode.LookupStr(dict, "comment")
	mi.CreatedBy, _ = bencode.LookupStr(dict, "created by")
	mi.CreationDate, _ = bencode.LookupInt(dict, "creation date")

	if tiers, err := bencode.LookupList(dict, "announce-list"); err == nil {
		mi.AnnounceList = stringLists(tiers)
	}

	return mi, nil
}

// ParseInfo decodes a bare info dictionary, such as one fetched with
// ut_metadata.
func ParseInfo(data []byte) (*Info, error) {
	root, err := bencode.Decode(data)
	if err != nil {
		return nil, err
	}

	return infoFromValue(root)
}

func infoFromValue(v bencode.Value) (*Info, error) {
	d, ok := v.Dict()
	if !ok {
		return nil, fmt.Errorf("%w: info is %s", ErrInvalidMetainfo, v.Kind())
	}

	info := &Info{}

	var err error

	if info.Name, err = bencode.LookupStr(d, "name"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetainfo, err)
	}

	if info.PieceLength, err = bencode.LookupInt(d, "piece length"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetainfo, err)
	}

	if info.Pieces, err = bencode.LookupBytes(d, "pieces"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetainfo, err)
	}

	info.Pieces = append([]byte(nil), info.Pieces...)
	info.Length, _ = bencode.LookupInt(d, "length")

	if private, err := bencode.LookupInt(d, "private"); err == nil {
		info.Private = private == 1
	}

	if files, err := bencode.LookupList(d, "files"); err == nil {
		for i, fv := range bencode.Items(files) {
			f, err := fileFromValue(fv)
			if err != nil {
				return nil, fmt.Errorf("%w: file %d: %w", ErrInvalidMetainfo, i, err)
			}

			info.Files = append(info.Files, f)
		}
	}

	if err := info.validate(); err != nil {
		return nil, err
	}

	return info, nil
}

func fileFromValue(v bencode.Value) (File, error) {
	d, ok := v.Dict()
	if !ok {
		return File{}, fmt.Errorf("entry is %s", v.Kind())
	}

	length, err := bencode.LookupInt(d, "length")
	if err != nil {
		return File{}, err
	}

	parts, err := bencode.LookupList(d, "path")
	if err != nil {
		return File{}, err
	}

	f := File{Length: length}

	for _, p := range bencode.Items(parts) {
		s, ok := p.Str()
		if !ok {
			return File{}, errors.New("path component is not a string")
		}

		f.Path = append(f.Path, s)
	}

	if len(f.Path) == 0 {
		return File{}, errors.New("empty path")
	}

	return f, nil
}

func stringLists(l bencode.List) [][]string {
	var out [][]string

	for _, tier := range bencode.Items(l) {
		inner, ok := tier.List()
		if !ok {
			continue
		}

		var urls []string

		for _, u := range bencode.Items(inner) {
			if s, ok := u.Str(); ok {
				urls = append(urls, s)
			}
		}

		out = append(out, urls)
	}

	return out
}

func (i *Info) validate() error {
	if len(i.Pieces)%sha1.Size != 0 {
		return fmt.Errorf("%w: pieces string length not multiple of 20", ErrInvalidMetainfo)
	}

	if i.PieceLength <= 0 {
		return fmt.Errorf("%w: invalid piece length", ErrInvalidMetainfo)
	}

	// Exactly one of single-file length or multi-file array must be present.
	if (i.Length == 0) == (len(i.Files) == 0) {
		return fmt.Errorf("%w: exactly one of length or files must be present", ErrInvalidMetainfo)
	}

	return nil
}

// NumPieces returns the number of pieces.
func (i *Info) NumPieces() int {
	return len(i.Pieces) / sha1.Size
}

// PieceHash returns the SHA-1 of piece n.
func (i *Info) PieceHash(n int) (peer.Hash, bool) {
	if n < 0 || n >= i.NumPieces() {
		return peer.Hash{}, false
	}

	return peer.MustHash(i.Pieces[n*sha1.Size : (n+1)*sha1.Size]), true
}

// TotalLength returns the size of all files together.
func (i *Info) TotalLength() int64 {
	if len(i.Files) == 0 {
		return i.Length
	}

	var total int64
	for _, f := range i.Files {
		total += f.Length
	}

	return total
}
