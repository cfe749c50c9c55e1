package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

// DefaultFileName is the project config looked up in the working directory
const DefaultFileName = "globekeys.toml"

// ErrConfigNotFound is returned by Load when the config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

const (
	defaultOriginDir    = "./src/messages"
	defaultLocalizedDir = "./src/app/(i18n)"
)

var defaultKeyExtractionDirs = []string{"./src"}

// Config is the project configuration read from globekeys.toml
type Config struct {
	Locales       []string       `toml:"locales"`
	DefaultLocale string         `toml:"default_locale"`
	Messages      MessagesConfig `toml:"messages"`
	Routes        RoutesConfig   `toml:"routes"`
	Domains       []DomainConfig `toml:"domains"`

	// Dir is the directory relative paths are resolved against
	Dir string `toml:"-"`
}

type MessagesConfig struct {
	OriginDir string `toml:"origin_dir"`
	// KeyExtractionDirs are scanned for translator calls. An explicit empty
	// list disables extraction.
	KeyExtractionDirs []string `toml:"key_extraction_dirs"`
	PruneUnusedKeys   bool     `toml:"prune_unused_keys"`
	WhitelistedKeys   []string `toml:"whitelisted_keys"`

	whitelist []*regexp.Regexp
}

type RoutesConfig struct {
	LocalizedDir string `toml:"localized_dir"`
}

type DomainConfig struct {
	Domain        string   `toml:"domain"`
	Locales       []string `toml:"locales"`
	DefaultLocale string   `toml:"default_locale"`
}

// LoadDotEnv loads a .env file from dir when one exists. Variables already
// set in the environment win.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads, defaults and validates the config at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir: %w", err)
	}
	cfg.Dir = abs
	return cfg, nil
}

// Parse decodes TOML config data, fills defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Messages.OriginDir) == "" {
		c.Messages.OriginDir = defaultOriginDir
	}
	if c.Messages.KeyExtractionDirs == nil {
		c.Messages.KeyExtractionDirs = append([]string(nil), defaultKeyExtractionDirs...)
	}
	if strings.TrimSpace(c.Routes.LocalizedDir) == "" {
		c.Routes.LocalizedDir = defaultLocalizedDir
	}
	if len(c.Domains) > 0 && c.DefaultLocale == "" {
		c.DefaultLocale = c.Domains[0].DefaultLocale
	}
}

func (c *Config) validate() error {
	if len(c.Domains) > 0 && len(c.Locales) > 0 {
		return fmt.Errorf("config: locales and domains are mutually exclusive")
	}
	for i, d := range c.Domains {
		if strings.TrimSpace(d.Domain) == "" {
			return fmt.Errorf("config: domains[%d].domain is required", i)
		}
		if len(d.Locales) == 0 {
			return fmt.Errorf("config: domain %q has no locales", d.Domain)
		}
		if d.DefaultLocale != "" && !contains(d.Locales, d.DefaultLocale) {
			return fmt.Errorf("config: default locale %q of domain %q is not one of its locales", d.DefaultLocale, d.Domain)
		}
	}

	locales := c.GetLocales()
	if len(locales) == 0 {
		return fmt.Errorf("config: at least one locale is required")
	}
	for _, l := range locales {
		if _, err := language.Parse(l); err != nil {
			return fmt.Errorf("config: invalid locale %q: %w", l, err)
		}
	}
	if c.DefaultLocale == "" {
		return fmt.Errorf("config: default_locale is required")
	}
	if !contains(locales, c.DefaultLocale) {
		return fmt.Errorf("config: default_locale %q is not one of the locales", c.DefaultLocale)
	}

	c.Messages.whitelist = c.Messages.whitelist[:0]
	for _, pattern := range c.Messages.WhitelistedKeys {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("config: invalid whitelisted key pattern %q: %w", pattern, err)
		}
		c.Messages.whitelist = append(c.Messages.whitelist, re)
	}
	return nil
}

// GetLocales returns the configured locales. With domains, this is the
// union of every domain's locales, longest tag first so that prefix matching
// prefers the most specific locale.
func (c *Config) GetLocales() []string {
	if len(c.Domains) == 0 {
		return c.Locales
	}
	seen := make(map[string]bool)
	var locales []string
	for _, d := range c.Domains {
		for _, l := range d.Locales {
			if !seen[l] {
				seen[l] = true
				locales = append(locales, l)
			}
		}
	}
	sort.SliceStable(locales, func(i, j int) bool {
		return len(locales[i]) > len(locales[j])
	})
	return locales
}

// IsWhitelisted reports whether key matches any whitelisted_keys pattern
func (m *MessagesConfig) IsWhitelisted(key string) bool {
	for _, re := range m.whitelist {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// ResolvePath makes p absolute relative to the config directory
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Dir, p)
}

// OriginDir returns the absolute messages directory
func (c *Config) OriginDir() string {
	return c.ResolvePath(c.Messages.OriginDir)
}

// KeyExtractionDirs returns the absolute directories scanned for keys
func (c *Config) KeyExtractionDirs() []string {
	dirs := make([]string, 0, len(c.Messages.KeyExtractionDirs))
	for _, d := range c.Messages.KeyExtractionDirs {
		dirs = append(dirs, c.ResolvePath(d))
	}
	return dirs
}

// ExcludedDirs returns directories that never hold hand-written sources
func (c *Config) ExcludedDirs() []string {
	return []string{c.OriginDir(), c.ResolvePath(c.Routes.LocalizedDir)}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
