package graph

import (
	"fmt"

	"github.com/treeverse/commitgraph/pkg/signature"
	"google.golang.org/protobuf/encoding/protowire"
)

// Values kept in storage use the protobuf wire format. Field numbers are part of the
// storage format and must not be reused.

// fieldReader walks protobuf fields. The first failure sticks and stops the walk.
type fieldReader struct {
	b   []byte
	err error
}

func (r *fieldReader) fail(n int) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrDecode, protowire.ParseError(n))
	}
	r.b = nil
}

func (r *fieldReader) next() (protowire.Number, protowire.Type, bool) {
	if r.err != nil || len(r.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		r.fail(n)
		return 0, 0, false
	}
	r.b = r.b[n:]
	return num, typ, true
}

func (r *fieldReader) varint() uint64 {
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		r.fail(n)
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) bytes() []byte {
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		r.fail(n)
		return nil
	}
	r.b = r.b[n:]
	if len(v) == 0 {
		return nil
	}
	return append([]byte{}, v...)
}

func (r *fieldReader) skip(num protowire.Number, typ protowire.Type) {
	n := protowire.ConsumeFieldValue(num, typ, r.b)
	if n < 0 {
		r.fail(n)
		return
	}
	r.b = r.b[n:]
}

func (r *fieldReader) check(err error) {
	if err != nil && r.err == nil {
		r.err = err
		r.b = nil
	}
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func MarshalCommitID(id CommitID) []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(id.Level))
	return appendBytesField(b, 2, []byte(id.Hash))
}

func UnmarshalCommitID(b []byte) (CommitID, error) {
	var id CommitID
	r := fieldReader{b: b}
	for {
		num, typ, ok := r.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			id.Level = int64(r.varint())
		case num == 2 && typ == protowire.BytesType:
			id.Hash = Hash(r.bytes())
		default:
			r.skip(num, typ)
		}
	}
	return id, r.err
}

func MarshalCommit(c *RawCommit) []byte {
	var b []byte
	for _, p := range c.Parents {
		b = appendBytesField(b, 1, MarshalCommitID(p))
	}
	b = appendVarintField(b, 2, uint64(c.Level))
	return appendBytesField(b, 3, c.Payload)
}

func UnmarshalCommit(b []byte) (*RawCommit, error) {
	c := &RawCommit{}
	r := fieldReader{b: b}
	for {
		num, typ, ok := r.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			p, err := UnmarshalCommitID(r.bytes())
			r.check(err)
			c.Parents = append(c.Parents, p)
		case num == 2 && typ == protowire.VarintType:
			c.Level = int64(r.varint())
		case num == 3 && typ == protowire.BytesType:
			c.Payload = r.bytes()
		default:
			r.skip(num, typ)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func MarshalRepoID(repo RepoID) []byte {
	var b []byte
	b = appendBytesField(b, 1, repo.Owner[:])
	return appendBytesField(b, 2, []byte(repo.Name))
}

func UnmarshalRepoID(b []byte) (RepoID, error) {
	var repo RepoID
	r := fieldReader{b: b}
	for {
		num, typ, ok := r.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			owner, err := signature.PublicKeyFromBytes(r.bytes())
			r.check(err)
			repo.Owner = owner
		case num == 2 && typ == protowire.BytesType:
			repo.Name = string(r.bytes())
		default:
			r.skip(num, typ)
		}
	}
	return repo, r.err
}

func marshalSigned(value, sig []byte) []byte {
	var b []byte
	b = appendBytesField(b, 1, value)
	return appendBytesField(b, 2, sig)
}

func unmarshalSigned(b []byte) (value, sig []byte, err error) {
	r := fieldReader{b: b}
	for {
		num, typ, ok := r.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			value = r.bytes()
		case num == 2 && typ == protowire.BytesType:
			sig = r.bytes()
		default:
			r.skip(num, typ)
		}
	}
	return value, sig, r.err
}

func MarshalSignedHead(h SignedHead) []byte {
	var b []byte
	b = appendBytesField(b, 1, MarshalRepoID(h.Value.RepositoryID))
	b = appendBytesField(b, 2, MarshalCommitID(h.Value.CommitID))
	b = appendVarintField(b, 3, uint64(h.Value.Timestamp))
	return marshalSigned(b, h.Signature)
}

func UnmarshalSignedHead(data []byte) (SignedHead, error) {
	var h SignedHead
	value, sig, err := unmarshalSigned(data)
	if err != nil {
		return h, err
	}
	h.Signature = sig
	r := fieldReader{b: value}
	for {
		num, typ, ok := r.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			repo, err := UnmarshalRepoID(r.bytes())
			r.check(err)
			h.Value.RepositoryID = repo
		case num == 2 && typ == protowire.BytesType:
			id, err := UnmarshalCommitID(r.bytes())
			r.check(err)
			h.Value.CommitID = id
		case num == 3 && typ == protowire.VarintType:
			h.Value.Timestamp = int64(r.varint())
		default:
			r.skip(num, typ)
		}
	}
	return h, r.err
}

func MarshalSignedSnapshot(s SignedSnapshot) []byte {
	var b []byte
	b = appendBytesField(b, 1, MarshalRepoID(s.Value.RepositoryID))
	b = appendBytesField(b, 2, MarshalCommitID(s.Value.CommitID))
	b = appendBytesField(b, 3, s.Value.Payload)
	return marshalSigned(b, s.Signature)
}

func UnmarshalSignedSnapshot(data []byte) (SignedSnapshot, error) {
	var s SignedSnapshot
	value, sig, err := unmarshalSigned(data)
	if err != nil {
		return s, err
	}
	s.Signature = sig
	r := fieldReader{b: value}
	for {
		num, typ, ok := r.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			repo, err := UnmarshalRepoID(r.bytes())
			r.check(err)
			s.Value.RepositoryID = repo
		case num == 2 && typ == protowire.BytesType:
			id, err := UnmarshalCommitID(r.bytes())
			r.check(err)
			s.Value.CommitID = id
		case num == 3 && typ == protowire.BytesType:
			s.Value.Payload = r.bytes()
		default:
			r.skip(num, typ)
		}
	}
	return s, r.err
}

func MarshalSignedPullRequest(p SignedPullRequest) []byte {
	var b []byte
	b = appendBytesField(b, 1, MarshalRepoID(p.Value.Repository))
	b = appendBytesField(b, 2, MarshalRepoID(p.Value.Fork))
	return marshalSigned(b, p.Signature)
}

func UnmarshalSignedPullRequest(data []byte) (SignedPullRequest, error) {
	var p SignedPullRequest
	value, sig, err := unmarshalSigned(data)
	if err != nil {
		return p, err
	}
	p.Signature = sig
	r := fieldReader{b: value}
	for {
		num, typ, ok := r.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			repo, err := UnmarshalRepoID(r.bytes())
			r.check(err)
			p.Value.Repository = repo
		case num == 2 && typ == protowire.BytesType:
			repo, err := UnmarshalRepoID(r.bytes())
			r.check(err)
			p.Value.Fork = repo
		default:
			r.skip(num, typ)
		}
	}
	return p, r.err
}
