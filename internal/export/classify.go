package export

import (
	"context"
	"errors"

	"logexport/internal/config"
	"logexport/internal/logsapi"
	"logexport/internal/storage"
)

// Kind groups errors for reporting.
type Kind int

const (
	KindNone Kind = iota
	KindConfiguration
	KindProviderCommunication
	KindProviderJobFailure
	KindDestination
	KindCanceled
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfiguration:
		return "configuration"
	case KindProviderCommunication:
		return "provider_communication"
	case KindProviderJobFailure:
		return "provider_job_failure"
	case KindDestination:
		return "destination"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	var (
		ve *config.ValidationError
		je *logsapi.JobError
		pe *logsapi.ProviderError
		pt *logsapi.PartError
		de *storage.DestinationError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &ve):
		return KindConfiguration
	case errors.As(err, &je), errors.Is(err, logsapi.ErrJobFailed), errors.Is(err, logsapi.ErrPollTimeout),
		errors.Is(err, logsapi.ErrEmptyResult), errors.Is(err, ErrNoAvailableFields):
		return KindProviderJobFailure
	case errors.As(err, &de):
		return KindDestination
	case errors.As(err, &pe), errors.As(err, &pt):
		return KindProviderCommunication
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindOther
}
