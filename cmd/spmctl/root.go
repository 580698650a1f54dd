// Copyright 2025 The Secure Partition Monitor authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	goflag "flag"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/secure-monitor/spm/platform"
	"github.com/secure-monitor/spm/platform/virt"
)

var rootCmd = &cobra.Command{
	Use:          "spmctl",
	Short:        "Secure partition monitor setup inspector",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile := viper.GetString("config"); cfgFile != "" {
			viper.SetConfigFile(cfgFile)

			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("reading %s: %w", cfgFile, err)
			}
		}
		return nil
	},
}

func init() {
	fs := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(fs)
	rootCmd.PersistentFlags().AddGoFlagSet(fs)

	rootCmd.PersistentFlags().String("config", "", "platform description file (yaml/json/toml)")
	rootCmd.PersistentFlags().Int("core", 0, "linear index of the core running setup")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.CompletionOptions = cobra.CompletionOptions{
		DisableDefaultCmd: true,
	}
}

// loadPlatform starts from the virt reference layout and overrides it with
// whatever the platform description file provides.
func loadPlatform() (*virt.Platform, error) {
	p := virt.New()

	var cfg platform.Config

	if err := viper.UnmarshalKey("platform", &cfg); err != nil {
		return nil, fmt.Errorf("platform description: %w", err)
	}

	if cfg.Map.ImageBase != 0 {
		p.Cfg.Map = cfg.Map
	}
	if cfg.Caps.MaxGranule != 0 {
		p.Cfg.Caps = cfg.Caps
	}
	if cfg.MaxCores != 0 {
		p.Cfg.MaxCores = cfg.MaxCores
		p.NumCPUs = uint32(cfg.MaxCores)
	}

	p.Self = viper.GetInt("core")

	if err := p.Cfg.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}
