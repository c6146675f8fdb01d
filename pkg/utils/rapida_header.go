package utils

// Wire header names shared across services.
const (
	HEADER_API_KEY         = "x-api-key"
	HEADER_AUTH_KEY        = "authorization"
	HEADER_SOURCE_KEY      = "x-rapida-source"
	HEADER_ENVIRONMENT_KEY = "x-rapida-environment"
	HEADER_REGION_KEY      = "x-rapida-region"
)
