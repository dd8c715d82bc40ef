// Package connections manages named target database profiles.
package connections

import (
	"context"
	"errors"
	"time"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverDuckDB   Driver = "duckdb"
	DriverSQLite   Driver = "sqlite"
)

const DefaultPostgresPort = 5432

var ErrNotFound = errors.New("connection not found")

// Profile is a stored connection including its credentials. For file
// databases Database holds the file path. A non-empty DSN overrides the
// discrete fields.
type Profile struct {
	Name        string     `json:"name"`
	Driver      Driver     `json:"driver"`
	Host        string     `json:"host,omitempty"`
	Port        int        `json:"port,omitempty"`
	Database    string     `json:"database,omitempty"`
	User        string     `json:"user,omitempty"`
	Password    string     `json:"password,omitempty"`
	SSLMode     string     `json:"sslmode,omitempty"`
	Schema      string     `json:"schema,omitempty"`
	DSN         string     `json:"dsn,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

// Info is the password-free view of a Profile.
type Info struct {
	Name        string     `json:"name"`
	Driver      Driver     `json:"driver"`
	Host        string     `json:"host,omitempty"`
	Port        int        `json:"port,omitempty"`
	Database    string     `json:"database,omitempty"`
	User        string     `json:"user,omitempty"`
	SSLMode     string     `json:"sslmode,omitempty"`
	Schema      string     `json:"schema,omitempty"`
	HasDSN      bool       `json:"has_dsn"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

func (p Profile) Info() Info {
	return Info{
		Name:        p.Name,
		Driver:      p.Driver,
		Host:        p.Host,
		Port:        p.Port,
		Database:    p.Database,
		User:        p.User,
		SSLMode:     p.SSLMode,
		Schema:      p.Schema,
		HasDSN:      p.DSN != "",
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		LastUsed:    p.LastUsed,
	}
}

// Input is the caller-supplied shape for creating or updating a profile.
type Input struct {
	Name        string `json:"name" yaml:"name" validate:"required,max=64,connname"`
	Driver      Driver `json:"driver" yaml:"driver" validate:"omitempty,oneof=postgres duckdb sqlite"`
	Host        string `json:"host" yaml:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port        int    `json:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Database    string `json:"database" yaml:"database" validate:"max=1024"`
	User        string `json:"user" yaml:"user" validate:"max=128"`
	Password    string `json:"password" yaml:"password,omitempty"`
	SSLMode     string `json:"sslmode" yaml:"sslmode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Schema      string `json:"schema" yaml:"schema,omitempty" validate:"max=128"`
	DSN         string `json:"dsn" yaml:"dsn,omitempty"`
	Description string `json:"description" yaml:"description,omitempty" validate:"max=512"`
}

// Exported is the portable form used by export and import.
type Exported struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Driver      Driver `json:"driver,omitempty" yaml:"driver,omitempty"`
	Host        string `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database    string `json:"database,omitempty" yaml:"database,omitempty"`
	User        string `json:"user,omitempty" yaml:"user,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode     string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`
	Schema      string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Store persists profiles by name.
type Store interface {
	Put(ctx context.Context, profile Profile) error
	Get(ctx context.Context, name string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	Delete(ctx context.Context, name string) (bool, error)
}
