// Package wire implements Ignite's request/response framing over a plain
// TCP connection. Each frame is a 4-byte big-endian length prefix followed
// by a payload; the payload itself is a small tagged encoding built
// directly on google.golang.org/protobuf/encoding/protowire's varint and
// length-delimited primitives, without a generated .proto schema.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Op identifies which operation a Request carries.
type Op byte

const (
	OpSet Op = 1
	OpGet Op = 2
	OpRm  Op = 3
)

// ResponseKind identifies which variant a Response carries.
type ResponseKind byte

const (
	RespOk          ResponseKind = 1
	RespValue       ResponseKind = 2
	RespKeyNotFound ResponseKind = 3
	RespErr         ResponseKind = 4
)

// Field numbers used by the payload encoding. Request and Response each
// use their own tag space since they are never mixed in one frame.
const (
	fieldRequestOp    protowire.Number = 1
	fieldRequestKey   protowire.Number = 2
	fieldRequestValue protowire.Number = 3

	fieldResponseKind  protowire.Number = 1
	fieldResponseValue protowire.Number = 2
	fieldResponseMsg   protowire.Number = 3
)

const maxFrameSize = 64 * 1024 * 1024

// Request is a decoded client request.
type Request struct {
	Op    Op
	Key   []byte
	Value []byte
}

// EncodeRequest serializes a request's payload (not including the frame
// length prefix).
func EncodeRequest(req *Request) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRequestOp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.Op))

	b = protowire.AppendTag(b, fieldRequestKey, protowire.BytesType)
	b = protowire.AppendBytes(b, req.Key)

	if req.Op == OpSet {
		b = protowire.AppendTag(b, fieldRequestValue, protowire.BytesType)
		b = protowire.AppendBytes(b, req.Value)
	}

	return b
}

// DecodeRequest parses a request payload produced by EncodeRequest.
func DecodeRequest(b []byte) (*Request, error) {
	req := &Request{}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: malformed request tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldRequestOp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed request op: %w", protowire.ParseError(n))
			}
			req.Op = Op(v)
			b = b[n:]
		case fieldRequestKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed request key: %w", protowire.ParseError(n))
			}
			req.Key = append([]byte(nil), v...)
			b = b[n:]
		case fieldRequestValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed request value: %w", protowire.ParseError(n))
			}
			req.Value = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed request field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	return req, nil
}

// Response is a decoded server response.
type Response struct {
	Kind    ResponseKind
	Value   []byte
	Message string
}

// EncodeResponse serializes a response's payload.
func EncodeResponse(resp *Response) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldResponseKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(resp.Kind))

	if resp.Kind == RespValue {
		b = protowire.AppendTag(b, fieldResponseValue, protowire.BytesType)
		b = protowire.AppendBytes(b, resp.Value)
	}
	if resp.Kind == RespErr {
		b = protowire.AppendTag(b, fieldResponseMsg, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(resp.Message))
	}

	return b
}

// DecodeResponse parses a response payload produced by EncodeResponse.
func DecodeResponse(b []byte) (*Response, error) {
	resp := &Response{}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: malformed response tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldResponseKind:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed response kind: %w", protowire.ParseError(n))
			}
			resp.Kind = ResponseKind(v)
			b = b[n:]
		case fieldResponseValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed response value: %w", protowire.ParseError(n))
			}
			resp.Value = append([]byte(nil), v...)
			b = b[n:]
		case fieldResponseMsg:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed response message: %w", protowire.ParseError(n))
			}
			resp.Message = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("wire: malformed response field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	return resp, nil
}

// WriteFrame writes a length-prefixed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("wire: frame size %d exceeds maximum %d", size, maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
