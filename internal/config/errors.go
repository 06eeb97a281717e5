package config

import "errors"

var (
	errMissingProjectName = errors.New("errwebhook: project_name is required when webhook_url is set")
	errUnknownStoreBackend = errors.New("errwebhook: store.backend must be one of memory, badger, redis, postgres")
)
