package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// ServeStdio drives the Dispatcher over newline-delimited JSON-RPC 2.0
// messages on r/w, per spec.md §6 ("Messages are newline-delimited on
// stdio"). It runs until r is exhausted or ctx is cancelled. There is only
// one client on a stdio transport, so every request is tagged client id
// "stdio".
func ServeStdio(ctx context.Context, d *Dispatcher, r io.Reader, w io.Writer, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := writeLine(w, errorResponse(nil, &RPCError{Code: codeParseError, Message: "parse error: " + err.Error()})); werr != nil {
				return werr
			}
			continue
		}

		reqCtx := WithClientID(ctx, "stdio")
		resp, hasResp := d.Handle(reqCtx, req)
		if !hasResp {
			continue
		}
		if err := writeLine(w, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeLine(w io.Writer, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("rpcserver: marshal response: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
