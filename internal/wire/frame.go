// Package wire implements the compact text framing used on the mesh link.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned for text that is not a decodable frame.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Type identifies the kind of message carried by a Frame.
type Type string

const (
	TypeFileStart      Type = "file_start"
	TypeFileChunk      Type = "file_chunk"
	TypeFileCompletion Type = "file_completion"
	TypeBatchAck       Type = "batch_ack"
	TypeTransferError  Type = "transfer_error"
	TypeAnnounce       Type = "announce"
	TypeDiscover       Type = "discover"
)

// Frame is the normalized, in-memory form of every message exchanged over
// the link. Not every field applies to every Type; see Encode/Decode.
type Frame struct {
	Type Type

	Filename    string
	ChunkNumber int
	Data        []byte
	TotalChunks int
	FileSize    int64
	Checksum    string
	BatchSize   int

	From string
	To   string

	Message string

	NodeID string
	Role   string
	Time   int64
}

// raw is the short-field-name wire shape. Encode always emits this shape;
// Decode accepts either this or the long-name synonyms below.
type raw struct {
	T  string `json:"t"`
	F  string `json:"f,omitempty"`
	CN *int   `json:"cn,omitempty"`
	D  string `json:"d,omitempty"`
	TC *int   `json:"tc,omitempty"`
	FS *int64 `json:"fs,omitempty"`
	CS string `json:"cs,omitempty"`
	BS *int   `json:"bs,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	M string `json:"m,omitempty"`

	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
	Time *int64 `json:"time,omitempty"`

	BN *int `json:"bn,omitempty"`
}

// shortTag maps a normalized Type to the value placed in the wire "t" tag.
// file_chunk and file_completion intentionally share the "fc" tag; a
// decoder tells them apart by whether "cs" (the whole-file checksum) is
// present, since a chunk frame never carries one.
func shortTag(t Type) string {
	switch t {
	case TypeFileStart:
		return "fs"
	case TypeFileChunk, TypeFileCompletion:
		return "fc"
	case TypeBatchAck:
		return "ba"
	case TypeTransferError:
		return "te"
	case TypeAnnounce:
		return "announce"
	case TypeDiscover:
		return "discover"
	default:
		return string(t)
	}
}

// Encode renders f as its compact short-field-name wire text.
func Encode(f Frame) (string, error) {
	r := raw{
		T:    shortTag(f.Type),
		F:    f.Filename,
		From: f.From,
		To:   f.To,
	}

	switch f.Type {
	case TypeFileStart:
		tc := f.TotalChunks
		fs := f.FileSize
		bs := f.BatchSize
		r.TC = &tc
		r.FS = &fs
		r.CS = f.Checksum
		r.BS = &bs
	case TypeFileChunk:
		cn := f.ChunkNumber
		r.CN = &cn
		r.D = base64.StdEncoding.EncodeToString(f.Data)
	case TypeFileCompletion:
		r.CS = f.Checksum
	case TypeBatchAck:
		bn := f.ChunkNumber
		r.BN = &bn
	case TypeTransferError:
		r.M = f.Message
	case TypeAnnounce:
		r.ID = f.NodeID
		r.Role = f.Role
		r.Time = &f.Time
	case TypeDiscover:
		r.ID = f.NodeID
	default:
		return "", fmt.Errorf("wire: encode: %w: unknown type %q", ErrMalformedFrame, f.Type)
	}

	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("wire: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses text into a Frame, accepting both short and long field
// names. It returns ErrMalformedFrame for anything that is not valid JSON
// or carries no recognizable type tag; callers are expected to drop such
// input silently rather than treat it as a protocol error.
func Decode(text string) (Frame, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &generic); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	tag, ok := firstString(generic, "t", "type")
	if !ok || tag == "" {
		return Frame{}, fmt.Errorf("%w: missing type tag", ErrMalformedFrame)
	}

	f := Frame{}
	f.Filename, _ = firstString(generic, "f", "filename")
	f.From, _ = firstString(generic, "from")
	f.To, _ = firstString(generic, "to")

	switch tag {
	case "fs", "file_start":
		f.Type = TypeFileStart
		f.TotalChunks, _ = firstInt(generic, "tc", "total_chunks")
		fs64, _ := firstInt64(generic, "fs", "file_size")
		f.FileSize = fs64
		f.Checksum, _ = firstString(generic, "cs", "checksum")
		f.BatchSize, _ = firstInt(generic, "bs", "batch_size")

	case "fc":
		// Overloaded tag: presence of a checksum field means this is the
		// completion frame, not a chunk.
		if cs, ok := firstString(generic, "cs", "checksum"); ok && cs != "" {
			f.Type = TypeFileCompletion
			f.Checksum = cs
		} else {
			f.Type = TypeFileChunk
			f.ChunkNumber, _ = firstInt(generic, "cn", "chunk_number")
			data, _ := firstString(generic, "d", "data")
			decoded, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return Frame{}, fmt.Errorf("%w: bad chunk data: %v", ErrMalformedFrame, err)
			}
			f.Data = decoded
		}

	case "file_chunk":
		f.Type = TypeFileChunk
		f.ChunkNumber, _ = firstInt(generic, "cn", "chunk_number")
		data, _ := firstString(generic, "d", "data")
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: bad chunk data: %v", ErrMalformedFrame, err)
		}
		f.Data = decoded

	case "file_completion":
		f.Type = TypeFileCompletion
		f.Checksum, _ = firstString(generic, "cs", "checksum")

	case "ba", "batch_ack":
		f.Type = TypeBatchAck
		f.ChunkNumber, _ = firstInt(generic, "bn", "batch_number", "chunk_number")

	case "te", "transfer_error":
		f.Type = TypeTransferError
		f.Message, _ = firstString(generic, "m", "message")

	case "announce":
		f.Type = TypeAnnounce
		f.NodeID, _ = firstString(generic, "id")
		f.Role, _ = firstString(generic, "role")
		f.Time, _ = firstInt64(generic, "time")

	case "discover":
		f.Type = TypeDiscover
		f.NodeID, _ = firstString(generic, "id")

	default:
		return Frame{}, fmt.Errorf("%w: unrecognized type tag %q", ErrMalformedFrame, tag)
	}

	return f, nil
}

func firstString(m map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		return s, true
	}
	return "", false
}

func firstInt(m map[string]json.RawMessage, keys ...string) (int, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

func firstInt64(m map[string]json.RawMessage, keys ...string) (int64, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}
