package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	torrentFolder = "./bt_files"
	mediaFolder   = "/mnt/media"
)

type Handler struct {
	p string
}

func NewHandler(path string) *Handler {
	return &Handler{p: path}
}

// Get reads the configuration file and applies defaults. A missing file is
// not an error: defaults plus flag overrides are enough to run.
func (c *Handler) Get() (*Root, error) {
	b, err := os.ReadFile(c.p)
	if os.IsNotExist(err) {
		log.Info().Str("file", c.p).Msg("configuration file not found, using defaults")
		return AddDefaults(&Root{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}

	return parse(b)
}

func parse(b []byte) (*Root, error) {
	conf := &Root{}
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, fmt.Errorf("error parsing configuration file: %w", err)
	}

	return AddDefaults(conf), nil
}
