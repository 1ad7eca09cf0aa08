package torrent

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

// Ext is the file name suffix of torrent descriptor files.
const Ext = ".torrent"

var (
	ErrMalformed   = errors.New("malformed torrent file")
	ErrMissingInfo = errors.New("torrent file has no info dictionary")
	ErrMissingName = errors.New("torrent info has no name")
	ErrInvalidName = errors.New("torrent name is not valid text")
)

// Descriptor is a parsed .torrent file. Raw keeps the original bytes so the
// very same file can be handed to the download service.
type Descriptor struct {
	Filename string
	Name     string
	InfoHash string
	Raw      []byte
}

// IsDescriptor reports whether a directory entry should be treated as a
// torrent file. Only the name is checked.
func IsDescriptor(filename string) bool {
	return strings.HasSuffix(filename, Ext)
}

// ParseDescriptor decodes a .torrent file and extracts info.name. Only the
// info dictionary and its name are checked; other keys may hold anything.
func ParseDescriptor(filename string, data []byte) (*Descriptor, error) {
	var top map[string]bencode.Bytes
	if err := bencode.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	infoBytes, ok := top["info"]
	if !ok {
		return nil, ErrMissingInfo
	}

	var info map[string]interface{}
	if err := bencode.Unmarshal(infoBytes, &info); err != nil {
		return nil, fmt.Errorf("%w: info: %v", ErrMalformed, err)
	}

	v, ok := info["name"]
	if !ok {
		return nil, ErrMissingName
	}

	name, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected type %T", ErrInvalidName, v)
	}
	if !utf8.ValidString(name) {
		return nil, ErrInvalidName
	}

	return &Descriptor{
		Filename: filename,
		Name:     name,
		InfoHash: metainfo.HashBytes(infoBytes).HexString(),
		Raw:      data,
	}, nil
}

// Parser adapts ParseDescriptor to the batch coordinator.
type Parser struct{}

// Parse calls ParseDescriptor.
func (Parser) Parse(filename string, data []byte) (*Descriptor, error) {
	return ParseDescriptor(filename, data)
}
