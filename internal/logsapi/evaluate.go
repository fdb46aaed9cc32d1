package logsapi

import (
	"context"
	"errors"

	"logexport/internal/event"
	"logexport/internal/schema"
)

// Availability partitions the requested fields. Available keeps request order.
type Availability struct {
	Available    []schema.FieldSpec
	Unavailable  []schema.FieldSpec
	ExpectedSize int64 // fast path only
	// Degraded is set when the combined evaluation was rejected and fields
	// were probed one by one.
	Degraded bool
}

// FieldProbe works out which requested fields a source can export.
type FieldProbe struct {
	Client   *Client
	Observer event.Observer
}

// Probe evaluates all fields in one call; if the provider rejects the set it
// falls back to one evaluation per field.
//
// A transport failure on the combined call is returned as *ProviderError.
// Per-field failures of any kind mark only that field unavailable.
func (p *FieldProbe) Probe(ctx context.Context, source schema.Source, dr DateRange, fields []schema.FieldSpec) (Availability, error) {
	obs := event.OrNop(p.Observer)
	fields = dedupe(fields)
	if len(fields) == 0 {
		return Availability{}, nil
	}

	ev, err := p.Client.Evaluate(ctx, source, dr, fields)
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) || !pe.Rejected() {
			return Availability{}, err
		}
		obs.OnEvent(event.LevelWarn, "combined evaluation rejected; probing fields individually",
			"source", string(source), "status", pe.StatusCode, "message", pe.Message)
	} else if ev.Possible {
		return Availability{
			Available:    append([]schema.FieldSpec(nil), fields...),
			ExpectedSize: ev.ExpectedSize,
		}, nil
	} else {
		obs.OnEvent(event.LevelWarn, "combined evaluation not possible; probing fields individually",
			"source", string(source), "fields", len(fields))
	}

	out := Availability{Degraded: true}
	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return Availability{}, err
		}
		one, err := p.Client.Evaluate(ctx, source, dr, []schema.FieldSpec{f})
		switch {
		case err != nil:
			obs.OnEvent(event.LevelWarn, "field unavailable", "source", string(source), "field", string(f), "err", err)
			out.Unavailable = append(out.Unavailable, f)
		case !one.Possible:
			obs.OnEvent(event.LevelWarn, "field unavailable", "source", string(source), "field", string(f))
			out.Unavailable = append(out.Unavailable, f)
		default:
			out.Available = append(out.Available, f)
		}
	}
	return out, nil
}
