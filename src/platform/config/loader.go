package config

import (
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"

	"chatify/src/domain"
	"chatify/src/platform/validation"
)

type LoadOptions struct {
	YamlFilePaths []string
	EnvVarPrefix  string
}

func Load(options LoadOptions) (*Config, error) {
	errorBuilder := oops.
		In("config").
		Tags("loader")

	k := koanf.NewWithConf(koanf.Conf{
		Delim:       ".",
		StrictMerge: true,
	})

	var cfg Config

	// 1. Set defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errorBuilder.Wrapf(err, "failed to set config defaults")
	}

	// 2. Load config
	for _, path := range options.YamlFilePaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errorBuilder.Wrapf(err, "failed to load config file %s", path)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: options.EnvVarPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, options.EnvVarPrefix)
			key = strings.NewReplacer("__", "_", "_", ".").Replace(key)
			key = strings.ToLower(key)
			return key, value
		},
	}), nil)
	if err != nil {
		return nil, errorBuilder.Wrapf(err, "failed to load environment variables")
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errorBuilder.Wrapf(err, "failed to unmarshal config")
	}

	// 3. Validate config
	if err := validation.Instance.Struct(&cfg); err != nil {
		return nil, errorBuilder.Wrapf(err, "failed to validate config")
	}

	// 4. Add dynamic config
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errorBuilder.Wrapf(err, "failed to get hostname")
	}
	cfg.Application.Name = "chatify"
	cfg.Application.InstanceName = hostname
	cfg.Application.Version = getEnv("BUILD_VERSION", "unknown")

	// The replica id is the process identity every produced event carries;
	// default to the hostname when the orchestrator did not inject one.
	if cfg.Env.ReplicaID == "" {
		cfg.Env.ReplicaID = hostname
	}
	if err := domain.ValidateReplicaID(cfg.Env.ReplicaID); err != nil {
		return nil, errorBuilder.Wrapf(err, "invalid replica id '%s'", cfg.Env.ReplicaID)
	}

	return &cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
