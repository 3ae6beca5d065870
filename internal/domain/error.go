package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("too many attempts")

	// Collaborator errors
	ErrIdentityRejected  = errors.New("identity provider rejected the request")
	ErrUploadFailed      = errors.New("blob storage upload failed")
	ErrUnknownService    = errors.New("unknown music service")
	ErrConnectorDisabled = errors.New("music service connector not configured")
	ErrImportInProgress  = errors.New("library import already running")
)
