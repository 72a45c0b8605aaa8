// Copyright (c) 2026, The Pipeliner Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package config loads the YAML-tagged settings for both binaries this
// module builds, following the teacher's simulation/node_config.go
// convention of plain structs with yaml tags and sensible zero-value
// defaults applied after decode.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dflow/pipeliner/pkg/ports"
)

// PlannerConfig bounds the topology planner's port pool and sets the
// launch-plan emitter's defaults.
type PlannerConfig struct {
	PortPoolLow        int    `yaml:"port_pool_low"`
	PortPoolHigh       int    `yaml:"port_pool_high"`
	DefaultEdgeType    string `yaml:"default_edge_type"`
	LogTimestampFormat string `yaml:"log_timestamp_format"`
	LogsDir            string `yaml:"logs_dir"`
}

// DefaultPlannerConfig returns the zero-config defaults: spec.md §3's
// 1000-9998 port pool, text edges, the emitter's own timestamp format.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		PortPoolLow:        ports.DefaultLow,
		PortPoolHigh:       ports.DefaultHigh,
		DefaultEdgeType:    "text",
		LogTimestampFormat: "[%Y-%m-%d %H:%M:%S]",
		LogsDir:            "logs",
	}
}

// MergerConfig holds the diarization merger's tunables.
type MergerConfig struct {
	TranscriptionPort       int           `yaml:"transcription_port"`
	DiarizationPort         int           `yaml:"diarization_port"`
	DiarizationBufferSize   int           `yaml:"diarization_buffer_size"`
	MaximumDiarizationDelay time.Duration `yaml:"maximum_diarization_delay"`
}

// DefaultMergerConfig mirrors the original's defaults: a handful of
// seconds of delay tolerance and a buffer sized for a few minutes of
// ordinary conversational turn-taking.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{
		TranscriptionPort:       9000,
		DiarizationPort:         9001,
		DiarizationBufferSize:   64,
		MaximumDiarizationDelay: 2 * time.Second,
	}
}

// LoadPlannerConfig reads and unmarshals path over DefaultPlannerConfig,
// so a partial YAML file only needs to specify the fields it overrides.
func LoadPlannerConfig(path string) (PlannerConfig, error) {
	cfg := DefaultPlannerConfig()
	if err := loadYAML(path, &cfg); err != nil {
		return PlannerConfig{}, err
	}
	return cfg, nil
}

// LoadMergerConfig reads and unmarshals path over DefaultMergerConfig.
func LoadMergerConfig(path string) (MergerConfig, error) {
	cfg := DefaultMergerConfig()
	if err := loadYAML(path, &cfg); err != nil {
		return MergerConfig{}, err
	}
	return cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config %q", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "parsing config %q", path)
	}
	return nil
}
