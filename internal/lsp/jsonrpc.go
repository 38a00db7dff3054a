package lsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
)

// maxPayload bounds one framed message.
const maxPayload = 64 << 20

var errMissingLength = errors.New("jsonrpc: missing Content-Length header")

// readMessage reads one Content-Length framed payload. Header names are
// case-insensitive; headers other than Content-Length are ignored.
func readMessage(r *bufio.Reader) ([]byte, error) {
	hdr, err := textproto.NewReader(r).ReadMIMEHeader()
	if err != nil {
		if len(hdr) == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("jsonrpc: reading header: %w", err)
	}
	raw := hdr.Get("Content-Length")
	if raw == "" {
		return nil, errMissingLength
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("jsonrpc: invalid Content-Length %q", raw)
	}
	if n > maxPayload {
		return nil, fmt.Errorf("jsonrpc: payload of %d bytes exceeds %d", n, maxPayload)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("jsonrpc: reading payload: %w", err)
	}
	return payload, nil
}

// writeMessage frames payload and writes it with a single Write call.
func writeMessage(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(payload)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}
