package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Validator is implemented by configs that can check themselves after loading.
type Validator interface {
	Validate() error
}

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set in config are defaults; the file overrides them and environment variables
// (upper case, "." replaced by "_") override the file.
func Load(file string, config any) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	if c, ok := config.(Validator); ok {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	return nil
}
