package polar

import (
	"errors"
	"io"

	"github.com/Tnze/go-mc/nbt"
)

// Tag is the compound attached to a block entity: its tag type and payload,
// without a root name. The archive stores it without looking inside.
type Tag = nbt.RawMessage

// TagCodec reads and writes block entity tags. Archives up to
// VersionTagReaderBreak store tags in the legacy layout.
type TagCodec interface {
	ReadTag(r io.Reader) (Tag, error)
	ReadLegacyTag(r io.Reader) (Tag, error)
	WriteTag(w io.Writer, tag Tag) error
}

// DefaultTagCodec reads both layouts and writes the current one.
var DefaultTagCodec TagCodec = nbtCodec{}

var errEndTag = errors.New("nbt: end tag as root")

type nbtCodec struct{}

// ReadTag reads a tag with a nameless network root.
func (nbtCodec) ReadTag(r io.Reader) (tag Tag, err error) {
	decoder := nbt.NewDecoder(r)
	decoder.NetworkFormat(true)
	_, err = decoder.Decode(&tag)
	return
}

// ReadLegacyTag reads a tag with a named root and drops the name.
func (nbtCodec) ReadLegacyTag(r io.Reader) (tag Tag, err error) {
	_, err = nbt.NewDecoder(r).Decode(&tag)
	return
}

func (nbtCodec) WriteTag(w io.Writer, tag Tag) error {
	if tag.Type == nbt.TagEnd {
		return errEndTag
	}
	encoder := nbt.NewEncoder(w)
	encoder.NetworkFormat(true)
	return encoder.Encode(tag, "")
}
