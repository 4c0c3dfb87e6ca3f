package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/scubapro711/youtube-autopilot/internal/app"
)

// envPrefix marks the environment variables this CLI reads.
const envPrefix = "YTAUTH_"

// flagKeys rewrites flag names into config key paths: a double dash descends
// one nesting level and single dashes become underscores, so --storage--dir
// lands on storage.dir and --log-level on log_level.
var flagKeys = strings.NewReplacer("--", ".", "-", "_")

// loadConfig assembles the configuration, lowest precedence first: TOML file,
// YTAUTH_* environment, then flags set on this invocation. Defaults fill
// whatever remains unset, and the result is validated before use.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	if err := k.Load(envLayer(environFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}
	if cmd != nil {
		if err := k.Load(confmap.Provider(flagLayer(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envLayer maps prefixed environment variables onto config keys, with a
// double underscore descending one nesting level: YTAUTH_STORAGE__DIR sets
// storage.dir.
func envLayer(environFunc func() []string) koanf.Provider {
	return env.Provider(".", env.Opt{
		Prefix:      envPrefix,
		EnvironFunc: environFunc,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	})
}

// flagLayer collects the flags the user actually set on this invocation,
// root flags included. Unset flags are skipped so they cannot shadow file or
// environment values with their defaults.
func flagLayer(cmd *cli.Command) map[string]any {
	set := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}
		if v := cmd.Value(name); v != nil {
			set[flagKeys.Replace(name)] = v
		}
	}
	return set
}
