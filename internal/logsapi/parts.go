package logsapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"logexport/internal/dataset"
	"logexport/internal/event"
	"logexport/internal/parser/tsv"
)

// Archiver keeps a copy of each raw part body.
type Archiver interface {
	ArchivePart(ctx context.Context, counterID, requestID string, part int, body []byte) error
}

// PartFetcher downloads and concatenates a finished job's parts.
type PartFetcher struct {
	Client   *Client
	Observer event.Observer
	// Archive is optional. Its failures are logged and ignored.
	Archive Archiver
}

// Fetch downloads parts in order and concatenates them.
//
// Any failure returns a *PartError and no dataset. An empty part list
// returns ErrEmptyResult; an empty body is a parse failure of that part.
func (f *PartFetcher) Fetch(ctx context.Context, requestID string, parts []Part) (*dataset.Table, error) {
	obs := event.OrNop(f.Observer)
	if len(parts) == 0 {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrEmptyResult)
	}

	frags := make([]*dataset.Table, 0, len(parts))
	for _, p := range parts {
		body, err := f.Client.DownloadPart(ctx, requestID, p.Number)
		if err != nil {
			return nil, &PartError{RequestID: requestID, Part: p.Number, Err: err}
		}
		if f.Archive != nil {
			if err := f.Archive.ArchivePart(ctx, f.Client.CounterID(), requestID, p.Number, []byte(body)); err != nil {
				obs.OnEvent(event.LevelWarn, "archive part failed", "request_id", requestID, "part", p.Number, "err", err)
			}
		}
		if strings.TrimSpace(body) == "" {
			return nil, &PartError{RequestID: requestID, Part: p.Number, Err: tsv.ErrNoHeader}
		}
		frag, err := tsv.Parse(ctx, strings.NewReader(body))
		if err != nil {
			return nil, &PartError{RequestID: requestID, Part: p.Number, Err: err}
		}
		frags = append(frags, frag)
		obs.OnEvent(event.LevelDebug, "part downloaded",
			"request_id", requestID, "part", p.Number, "rows", frag.Rows(), "bytes", len(body))
	}

	out, err := dataset.Concat(frags...)
	if err != nil {
		part := parts[0].Number
		var fe *dataset.FragmentError
		if errors.As(err, &fe) {
			part = parts[fe.Index].Number
		}
		return nil, &PartError{RequestID: requestID, Part: part, Err: err}
	}
	return out, nil
}
