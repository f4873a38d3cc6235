package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`

	// Client side.
	SignalingURL        string        `mapstructure:"signaling_url"`
	VerifyURL           string        `mapstructure:"verify_url"`
	STUNServers         []string      `mapstructure:"stun_servers"`
	ICEGatheringTimeout time.Duration `mapstructure:"ice_gathering_timeout"`
	FrameRate           int           `mapstructure:"frame_rate"`
	MediaFile           string        `mapstructure:"media_file"`
	DocumentPath        string        `mapstructure:"document_path"`
	ChannelLabel        string        `mapstructure:"channel_label"`
	UIAddr              string        `mapstructure:"ui_addr"`

	// Capture server side.
	Port      int    `mapstructure:"port"`
	FramesDir string `mapstructure:"frames_dir"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("signaling_url", "http://localhost:8080")
	v.SetDefault("verify_url", "http://localhost:8000/api/verify-identity/")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice_gathering_timeout", "1s")
	v.SetDefault("frame_rate", 5)
	v.SetDefault("media_file", "sample.ivf")
	v.SetDefault("document_path", "")
	v.SetDefault("channel_label", "faceDetection")
	v.SetDefault("ui_addr", "")
	v.SetDefault("port", 8080)
	v.SetDefault("frames_dir", "./frames")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
