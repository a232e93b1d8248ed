package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scenesmith/internal/apiclient"
	"scenesmith/internal/config"
)

type commandContext struct {
	addrFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string) *commandContext {
	return &commandContext{
		addrFlag:   addrFlag,
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) apiAddress() string {
	if c.addrFlag != nil && strings.TrimSpace(*c.addrFlag) != "" {
		return strings.TrimSpace(*c.addrFlag)
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.APIBind
	}
	return "127.0.0.1:7823"
}

func (c *commandContext) withClient(fn func(*apiclient.Client) error) error {
	client, err := apiclient.New(c.apiAddress())
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return wrapDaemonError(err, c.apiAddress())
	}
	return nil
}

func wrapDaemonError(err error, addr string) error {
	if apiclient.IsDaemonUnavailable(err) {
		return fmt.Errorf("connect to daemon at %s: daemon is not running; start it with `scenesmith daemon start`", addr)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
