package services

import "errors"

// Error taxonomy for the ingestion pipeline. Handlers recover all of these at
// the HTTP boundary; none of them is fatal to the process.
var (
	// ErrUpload reports that the media store rejected or failed to accept
	// bytes. No registry record exists for the failed item.
	ErrUpload = errors.New("media store upload failed")

	// ErrDispatch reports that the hand-off to the background worker failed
	// or returned a non-accepted status. The registry record is marked
	// "error" before this is returned.
	ErrDispatch = errors.New("processing dispatch failed")

	// ErrDispatchInFlight reports an attempt to dispatch a source that
	// already has an outstanding processing job.
	ErrDispatchInFlight = errors.New("processing job already outstanding for source")

	// ErrSourceNotFound reports that no registry record exists for the id.
	ErrSourceNotFound = errors.New("knowledge source not found")
)
