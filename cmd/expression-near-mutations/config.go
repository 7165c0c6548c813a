package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configFileName is looked up in the home directory when --config is not given.
const configFileName = ".expression-near-mutations.yaml"

// loadConfig reads the config file into v. A missing default config file is
// not an error; a missing explicit one is.
func loadConfig(v *viper.Viper, explicit string) error {
	v.SetEnvPrefix("EXPRESSION_NEAR_MUTATIONS")
	v.AutomaticEnv()

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, configFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func newConfigCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage expression-near-mutations configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/" + configFileName + ".",
		Example: `  expression-near-mutations config                              # show all config
  expression-near-mutations config set manifest /data/experiments.tsv  # default manifest
  expression-near-mutations config set workers 8                     # default worker count
  expression-near-mutations config get manifest                      # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(v, stdout)
		},
	}

	cmd.AddCommand(newConfigSetCmd(v, stdout))
	cmd.AddCommand(newConfigGetCmd(v, stdout))

	return cmd
}

func newConfigSetCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(v, stdout, args[0], args[1])
		},
	}
}

func newConfigGetCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(v, stdout, args[0])
		},
	}
}

func runConfigShow(v *viper.Viper, stdout io.Writer) error {
	settings := v.AllSettings()
	if len(settings) == 0 {
		fmt.Fprintf(stdout, "# No configuration set. Config file: ~/%s\n", configFileName)
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(stdout, string(out))
	return nil
}

func runConfigSet(v *viper.Viper, stdout io.Writer, key, value string) error {
	// Parse boolean-like and integer values
	switch value {
	case "true", "yes", "on":
		v.Set(key, true)
	case "false", "no", "off":
		v.Set(key, false)
	default:
		if n, err := strconv.Atoi(value); err == nil {
			v.Set(key, n)
		} else {
			v.Set(key, value)
		}
	}

	// Ensure config file exists
	cfgFile := v.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, configFileName)
	}

	if err := v.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(stdout, "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(v *viper.Viper, stdout io.Writer, key string) error {
	val := v.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(stdout, val)
	return nil
}
