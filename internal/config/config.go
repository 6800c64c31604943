// Package config loads the likesfeed YAML configuration, applies environment
// overrides and validates the result.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/merge"
	"github.com/abelbrown/likesfeed/internal/render"
)

//go:embed default_config.yaml
var defaultConfig []byte

// Config is the run configuration.
type Config struct {
	MinLikes         int    `yaml:"min_likes"`
	LikesPerPage     int    `yaml:"likes_per_page"`
	LikesMaxPages    int    `yaml:"likes_max_pages"`
	LikesConcurrency int    `yaml:"likes_concurrency"`
	LikesMinInterval string `yaml:"likes_min_interval"` // Go duration, "0s" disables
	MaxFeedEntries   int    `yaml:"max_feed_entries"`
	MaxStoredDays    int    `yaml:"max_stored_days"`
	MaxStoredItems   int    `yaml:"max_stored_items"`
	SiteTitle        string `yaml:"site_title"`
	SiteDescription  string `yaml:"site_description"`
	SiteURL          string `yaml:"site_url"`
	FeedPath         string `yaml:"feed_path"`
	FeedSource       string `yaml:"feed_source"`
	LikesAPIBase     string `yaml:"likes_api_base"`
	QiitaAPIToken    string `yaml:"qiita_api_token"`
	HistoryDB        string `yaml:"history_db"`
}

// DefaultPath is where the config is looked up when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "likesfeed", "config.yaml")
}

// Defaults returns the built-in configuration.
func Defaults() (*Config, error) {
	var cfg Config
	if err := decode(defaultConfig, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path over the built-in defaults, applies
// environment overrides and validates. An empty path means DefaultPath,
// which may be missing; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, apperr.New(apperr.Config, "config", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, apperr.Newf(apperr.Config, "config", "parse %s: %v", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// built-in defaults only
	default:
		return nil, apperr.Newf(apperr.Config, "config", "read %s: %v", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, apperr.New(apperr.Config, "config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperr.New(apperr.Config, "config", err)
	}
	cfg.ensureSiteURL()
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment. A missing file is not an error; existing variables win.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Newf(apperr.Config, "config", "load %s: %v", path, err)
	}
	return nil
}

// decode rejects unknown keys so a typo does not silently fall back to a
// default.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := envNonEmpty("MIN_LIKES"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MIN_LIKES is not a number: %q", v)
		}
		c.MinLikes = n
	}
	if v := envNonEmpty("SITE_URL"); v != "" {
		c.SiteURL = v
	}
	if v := envNonEmpty("QIITA_API_TOKEN"); v != "" {
		c.QiitaAPIToken = v
	}
	return nil
}

func envNonEmpty(key string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}

// Validate checks every limit and the source URL.
func (c *Config) Validate() error {
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	switch {
	case c.LikesPerPage < 1:
		return fmt.Errorf("likes_per_page must be >= 1, got %d", c.LikesPerPage)
	case c.LikesMaxPages < 1:
		return fmt.Errorf("likes_max_pages must be >= 1, got %d", c.LikesMaxPages)
	case c.LikesConcurrency < 1:
		return fmt.Errorf("likes_concurrency must be >= 1, got %d", c.LikesConcurrency)
	case strings.TrimSpace(c.FeedSource) == "":
		return errors.New("feed_source is empty")
	case strings.TrimSpace(c.FeedPath) == "":
		return errors.New("feed_path is empty")
	}
	if u, err := url.Parse(c.FeedSource); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("feed_source is not an absolute URL: %q", c.FeedSource)
	}
	if _, err := c.MinInterval(); err != nil {
		return err
	}
	return nil
}

// MinInterval is the parsed likes_min_interval.
func (c *Config) MinInterval() (time.Duration, error) {
	if c.LikesMinInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.LikesMinInterval)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("likes_min_interval is not a valid duration: %q", c.LikesMinInterval)
	}
	return d, nil
}

// ensureSiteURL trims a trailing slash, or derives the GitHub Pages URL from
// GITHUB_REPOSITORY when site_url is unset.
func (c *Config) ensureSiteURL() {
	if strings.TrimSpace(c.SiteURL) != "" {
		c.SiteURL = strings.TrimRight(strings.TrimSpace(c.SiteURL), "/")
		return
	}
	if u, ok := PagesURL(os.Getenv("GITHUB_REPOSITORY")); ok {
		c.SiteURL = u
	}
}

// PagesURL maps "owner/name" to its GitHub Pages URL. A user site
// ("owner/owner.github.io") is served from the domain root.
func PagesURL(repo string) (string, bool) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", false
	}
	if name == owner+".github.io" {
		return "https://" + owner + ".github.io", true
	}
	return "https://" + owner + ".github.io/" + name, true
}

// Policy returns the merge policy.
func (c *Config) Policy() merge.Policy {
	return merge.Policy{
		MinLikes:       c.MinLikes,
		MaxFeedEntries: c.MaxFeedEntries,
		MaxStoredDays:  c.MaxStoredDays,
		MaxStoredItems: c.MaxStoredItems,
	}
}

// Site returns the publishing metadata for the renderer.
func (c *Config) Site() render.SiteMeta {
	return render.SiteMeta{
		Title:       c.SiteTitle,
		Description: c.SiteDescription,
		SiteURL:     c.SiteURL,
		FeedPath:    c.FeedPath,
		FeedSource:  c.FeedSource,
		MinLikes:    c.MinLikes,
	}
}
