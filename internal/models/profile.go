package models

import "strings"

// ServiceKind classifies what a service is, independent of how it is
// managed. Resolved once during scanning and then matched exhaustively;
// consumers must not fall back to substring matching.
type ServiceKind string

const (
	KindDatabase  ServiceKind = "database"
	KindWebServer ServiceKind = "webserver"
	KindGeneric   ServiceKind = "generic"
)

// Engine is the database engine behind a KindDatabase service.
type Engine string

const (
	EngineMySQL    Engine = "mysql"
	EngineMariaDB  Engine = "mariadb"
	EnginePostgres Engine = "postgres"
	EngineMongoDB  Engine = "mongodb"
	EngineRedis    Engine = "redis"
)

// ServiceProfile is the resolved classification of a detected service.
type ServiceProfile struct {
	Kind   ServiceKind `json:"kind"`
	Engine Engine      `json:"engine,omitempty"`
}

// IsDatabase reports whether the profile is a database of any engine.
func (p ServiceProfile) IsDatabase() bool {
	return p.Kind == KindDatabase
}

var engineMatchers = []struct {
	substr string
	engine Engine
}{
	{"mariadb", EngineMariaDB},
	{"mysql", EngineMySQL},
	{"postgres", EnginePostgres},
	{"mongo", EngineMongoDB},
	{"redis", EngineRedis},
}

var webServerNames = []string{"nginx", "apache", "httpd", "caddy", "haproxy", "traefik", "lighttpd"}

// ResolveProfile classifies a service by name or container image. This is
// the single place substring matching happens; everything downstream
// switches on the resulting tagged profile.
func ResolveProfile(nameOrImage string) ServiceProfile {
	s := strings.ToLower(nameOrImage)

	for _, m := range engineMatchers {
		if strings.Contains(s, m.substr) {
			return ServiceProfile{Kind: KindDatabase, Engine: m.engine}
		}
	}

	for _, w := range webServerNames {
		if strings.Contains(s, w) {
			return ServiceProfile{Kind: KindWebServer}
		}
	}

	return ServiceProfile{Kind: KindGeneric}
}
