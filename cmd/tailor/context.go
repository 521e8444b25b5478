package main

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"tailor/internal/api"
	"tailor/internal/catalog"
	"tailor/internal/config"
)

type commandContext struct {
	configFlag *string
	urlFlag    *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, urlFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		urlFlag:    urlFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) baseURL() string {
	if c.urlFlag != nil && strings.TrimSpace(*c.urlFlag) != "" {
		return api.BaseURL(*c.urlFlag)
	}
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return api.BaseURL("127.0.0.1:7488")
	}
	return api.BaseURL(cfg.Paths.APIBind)
}

func (c *commandContext) client() *api.Client {
	token := ""
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		token = cfg.Paths.APIToken
	}
	if c.tokenFlag != nil && strings.TrimSpace(*c.tokenFlag) != "" {
		token = *c.tokenFlag
	}
	return api.NewClient(c.baseURL(), token)
}

func (c *commandContext) catalog() (*catalog.Catalog, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return catalog.LoadFromConfig(cfg)
}

// wrapDialError turns connection failures into a hint about starting tailord.
func wrapDialError(err error, baseURL string) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `tailor daemon` or tailord", baseURL)
	case errors.As(err, &opErr):
		return fmt.Errorf("connect to daemon at %s: %w", baseURL, err)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
