package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ppiankov/freightaudit/internal/model"
)

const envPrefix = "FREIGHTAUDIT"

// newSettings returns a viper instance that knows every configuration key,
// so FREIGHTAUDIT_* variables override nested values
func newSettings() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := flatten(model.DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("flatten default config: %v", err))
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// flatten turns a config struct into dotted keys and leaf values
func flatten(c *model.Config) (map[string]any, error) {
	var nested map[string]any
	if err := mapstructure.Decode(c, &nested); err != nil {
		return nil, err
	}
	out := make(map[string]any)
	flattenInto(out, "", nested)
	return out, nil
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenInto(out, key, child)
			continue
		}
		out[key] = v
	}
}

// SettingKeys returns every configuration key in sorted order
func SettingKeys() []string {
	defaults, err := flatten(model.DefaultConfig())
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loadConfig reads the config file, when there is one, and decodes the
// merged settings. An explicit path must exist; the fallback path may not.
func loadConfig(v *viper.Viper, explicit, fallback string) (*model.Config, string, error) {
	switch {
	case explicit != "":
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", explicit, err)
		}
	case fallback != "":
		if _, err := os.Stat(fallback); err == nil {
			v.SetConfigFile(fallback)
			if err := v.ReadInConfig(); err != nil {
				return nil, "", fmt.Errorf("read config %s: %w", fallback, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("stat config %s: %w", fallback, err)
		}
	}

	cfg := model.DefaultConfig()
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}
	// Empty collections decode as non-nil; nil keeps the "use defaults" meaning.
	if len(cfg.Anomaly.Features) == 0 {
		cfg.Anomaly.Features = nil
	}
	if len(cfg.RateLimiting.Providers) == 0 {
		cfg.RateLimiting.Providers = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// configAnnotation marks a flag as overriding a configuration key
const configAnnotation = "freightaudit_config_key"

// configFlag ties flag name to a configuration key. The binding happens
// when the command runs, so commands can share keys.
func configFlag(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, configAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("annotate flag %s: %v", name, err))
	}
}

// bindConfigFlags binds every annotated flag of the running command
func bindConfigFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configAnnotation]
		if err != nil || len(keys) == 0 {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}
