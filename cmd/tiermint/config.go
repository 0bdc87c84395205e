package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vitwit/tiermint/types"
	"github.com/vitwit/tiermint/utils"
)

const envPrefix = "TIERMINT"

// flag name -> config key
var configFlags = map[string]string{
	"network":       "network",
	"rpc-url":       "rpc_url",
	"ws-url":        "ws_url",
	"contract":      "contract_address",
	"mint-function": "mint_function",
	"log-level":     "log_level",
	"confirmations": "confirmations",
	"timeout":       "confirmation_timeout",
	"max-blocks":    "confirmation_blocks",
	"poll-interval": "poll_interval",
}

// envOnly keys are never taken from flags.
var envOnly = []string{"private_key", "explorer_host", "marketplace_host"}

// loadConfig merges, in increasing precedence, the config file, TIERMINT_*
// environment variables and flags.
func loadConfig(path string, flags *pflag.FlagSet) (types.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("network", string(types.NetworkPolygonAmoy))
	v.SetDefault("mint_function", types.DefaultMintFunction)
	v.SetDefault("log_level", "info")

	for name, key := range configFlags {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return types.Config{}, err
			}
		}
	}
	for _, key := range append(envOnly, "rpc_url", "ws_url", "contract_address") {
		if err := v.BindEnv(key); err != nil {
			return types.Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return types.Config{}, &types.MintError{
				Code:    types.ErrConfigError,
				Message: fmt.Sprintf("failed to read config %s: %v", path, err),
				Err:     err,
			}
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, &types.MintError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to decode config: %v", err),
			Err:     err,
		}
	}
	if err := utils.ValidateConfig(&cfg); err != nil {
		return types.Config{}, err
	}
	return cfg.WithDefaults(), nil
}
