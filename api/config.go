// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gonum.org/v1/plot/vg"
	"gopkg.in/yaml.v3"
)

type ChartConfig struct {
	// Inches.
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
	YMax   float64 `yaml:"y_max" validate:"gte=0"`
}

type OSCConfig struct {
	Host string `yaml:"host" validate:"omitempty,hostname|ip"`
	Port int    `yaml:"port" validate:"gt=0,lte=65535"`
}

type Config struct {
	Listen       string        `yaml:"listen" validate:"required,hostname_port"`
	HTTP         string        `yaml:"http" validate:"required,hostname_port"`
	Locale       string        `yaml:"locale" validate:"omitempty,oneof=en fr"`
	MaxPoints    int           `yaml:"max_points" validate:"gte=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	MaxFrameSize int           `yaml:"max_frame_size" validate:"gte=0"`
	RenderRate   float64       `yaml:"render_rate" validate:"gte=0"`
	Chart        ChartConfig   `yaml:"chart"`
	OSC          OSCConfig     `yaml:"osc"`
}

func DefaultConfig() Config {
	return Config{
		Listen:       "localhost:13000",
		HTTP:         ":7745",
		Locale:       "en",
		IdleTimeout:  30 * time.Second,
		MaxFrameSize: DefaultMaxFrameSize,
		RenderRate:   20,
		Chart: ChartConfig{
			Width:  10,
			Height: 6,
			YMax:   180,
		},
		OSC: OSCConfig{Port: 5498},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ChartOptions converts the chart section into rendering options.
func (c Config) ChartOptions() ChartOptions {
	return ChartOptions{
		Width:  vg.Length(c.Chart.Width) * vg.Inch,
		Height: vg.Length(c.Chart.Height) * vg.Inch,
		YMax:   c.Chart.YMax,
	}
}

// ParseConfig decodes YAML on top of the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("unable to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads path with ParseConfig. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read configuration: %w", err)
	}
	return ParseConfig(data)
}
