// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	API         API         `yaml:"api"`
	Storage     Storage     `yaml:"storage"`
	Database    Database    `yaml:"database"`
	ValKey      ValKey      `yaml:"valkey"`
	Migrate     Migrate     `yaml:"migrate"`
	Permissions Permissions `yaml:"permissions"`
	KeepAlive   KeepAlive   `yaml:"keepAlive"`
}

// API configures the backend the client talks to.
type API struct {
	BaseURL      string        `yaml:"baseURL"`
	UserCategory string        `yaml:"userCategory" default:"tenant"` // admin or tenant
	Timeout      time.Duration `yaml:"timeout" default:"30s"`
	UserAgent    string        `yaml:"userAgent" default:"session-client"`
	ClientAuth   ClientAuth    `yaml:"clientAuth"`
}

type ClientAuth struct {
	Type string          `yaml:"type" default:"none"` // none or mtls
	MTLS *commoncfg.MTLS `yaml:"mtls"`
}

const (
	StorageFile     = "file"
	StorageMemory   = "memory"
	StorageValKey   = "valkey"
	StoragePostgres = "postgres"
)

// Storage selects where the session is persisted between runs.
type Storage struct {
	Type      string        `yaml:"type" default:"file"`
	Path      string        `yaml:"path"`      // file storage, defaults to the user config dir
	Namespace string        `yaml:"namespace"` // valkey and postgres storage, defaults to the user category
	TTL       time.Duration `yaml:"ttl"`       // memory storage, zero keeps entries until cleared
}

// Database configures the postgres session storage and its migrations.
type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	SSLMode  string              `yaml:"sslMode"` // libpq sslmode, omitted when empty
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"session-client"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type Migrate struct {
	Source string `yaml:"source" default:"file://./sql"`
}

type Permissions struct {
	File string `yaml:"file"` // optional grant mapping overrides
}

// KeepAlive configures the background job refreshing the session ahead of
// its expiry.
type KeepAlive struct {
	Interval      time.Duration `yaml:"interval" default:"1m"`
	RefreshBefore time.Duration `yaml:"refreshBefore" default:"2m"`
}
