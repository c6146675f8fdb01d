package utils

import "strings"

// RapidaEnvironment labels the deployment environment. It decides websocket
// scheme selection, CORS relaxation and similar development conveniences.
type RapidaEnvironment string

const (
	PRODUCTION  RapidaEnvironment = "production"
	DEVELOPMENT RapidaEnvironment = "development"
)

func (e RapidaEnvironment) Get() string {
	return string(e)
}

func (e RapidaEnvironment) IsProduction() bool {
	return e == PRODUCTION
}

func (e RapidaEnvironment) IsDevelopment() bool {
	return e == DEVELOPMENT
}

// FromEnvironmentStr parses an environment label case-insensitively.
// Anything unrecognized is treated as development.
func FromEnvironmentStr(s string) RapidaEnvironment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production":
		return PRODUCTION
	default:
		return DEVELOPMENT
	}
}
