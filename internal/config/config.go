package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/polygene/internal/concern"
	"github.com/roach88/polygene/internal/uow"
)

//go:embed schema.cue
var schemaSource string

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverS3       = "s3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
)

// Config is the root of a configuration file.
type Config struct {
	Store        Store   `yaml:"store" json:"store"`
	Retry        Retry   `yaml:"retry" json:"retry"`
	Propagation  string  `yaml:"propagation" json:"propagation"`
	PruneOnPause bool    `yaml:"prune_on_pause" json:"prune_on_pause"`
	Metrics      Metrics `yaml:"metrics" json:"metrics"`
	LogLevel     string  `yaml:"log_level" json:"log_level"`
}

// Store selects and configures the entity store.
type Store struct {
	Driver string `yaml:"driver" json:"driver"`
	Codec  string `yaml:"codec" json:"codec"` // map stores only
	Path   string `yaml:"path" json:"path"`   // sqlite
	Dir    string `yaml:"dir" json:"dir"`     // file
	DSN    string `yaml:"dsn" json:"dsn"`     // postgres, mysql
	Redis  Redis  `yaml:"redis" json:"redis"`
	S3     S3     `yaml:"s3" json:"s3"`
}

// Redis configures the redis driver.
type Redis struct {
	Addrs    []string      `yaml:"addrs" json:"addrs"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	LockTTL  time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

// S3 configures the s3 driver.
type S3 struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	PathStyle       bool   `yaml:"path_style" json:"path_style"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

// Retry mirrors concern.Retry with YAML durations.
type Retry struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	Backoff      time.Duration `yaml:"backoff" json:"backoff"`
}

// Metrics configures the Prometheus recorder. An empty namespace disables it.
type Metrics struct {
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Defaults returns the configuration used for absent settings: an in-memory
// msgpack store, three retries and required propagation.
func Defaults() Config {
	return Config{
		Store: Store{
			Driver: DriverMemory,
			Codec:  "msgpack",
			Redis: Redis{
				Addrs:   []string{},
				Prefix:  "polygene",
				LockTTL: 30 * time.Second,
			},
			S3: S3{Region: "us-east-1"},
		},
		Retry: Retry{
			MaxRetries:   3,
			InitialDelay: 50 * time.Millisecond,
			Backoff:      25 * time.Millisecond,
		},
		Propagation: string(concern.PropagationRequired),
		Metrics:     Metrics{Namespace: "polygene"},
		LogLevel:    "info",
	}
}

// Load reads and validates the configuration file at path. An empty path
// returns Defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Defaults()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidationError lists every schema violation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid config: %d problems: %v", len(e.Problems), e.Problems)
}

// Validate unifies c with the #Config schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	if c.Store.Redis.Addrs == nil {
		c.Store.Redis.Addrs = []string{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	val := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		ve := &ValidationError{}
		for _, e := range cueerrors.Errors(err) {
			ve.Problems = append(ve.Problems, e.Error())
		}
		return ve
	}
	return nil
}

// Policy returns the concern policy for usecase.
func (c Config) Policy(usecase string) concern.Policy {
	p := concern.DefaultPolicy(usecase)
	p.Propagation = concern.Propagation(c.Propagation)
	p.Retry = concern.Retry{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: c.Retry.InitialDelay,
		Backoff:      c.Retry.Backoff,
	}
	return p
}

// UnitOptions returns the default unit-of-work options.
func (c Config) UnitOptions() uow.Options {
	return uow.Options{PruneOnPause: c.PruneOnPause}
}
