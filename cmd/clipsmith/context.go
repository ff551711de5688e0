package main

import (
	"strings"
	"sync"

	"clipsmith/internal/config"
	"clipsmith/internal/queue"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiClient builds an HTTP client against the daemon API, honoring the --api
// flag over the configured bind address.
func (c *commandContext) apiClient() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	address := ""
	if c.apiFlag != nil {
		address = strings.TrimSpace(*c.apiFlag)
	}
	if address == "" {
		address = strings.TrimSpace(cfg.Paths.APIBind)
	}
	return newAPIClient(address, cfg.Paths.APIToken), nil
}

// withStore opens the queue database directly. The daemon and CLI share the
// database file, so queue inspection works whether or not the daemon runs.
func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
