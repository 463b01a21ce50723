package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mspro-labs/map-extractor/internal/browser"
)

// AppConfig holds infrastructure config from standard env vars
type AppConfig struct {
	DBPath       string
	ConfigPath   string // Path to the YAML site config
	OutputDir    string // Where CSV files land; also the browser download dir
	Driver       string
	Headless     bool
	EmbedModel   string
	GeminiAPIKey string
}

// SiteConfig holds all target-site specific settings (from YAML)
type SiteConfig struct {
	SearchURL  string    `yaml:"search_url"`
	MaxResults int       `yaml:"max_results"`
	OutputName string    `yaml:"output_name"`
	Timing     Timing    `yaml:"timing"`
	Selectors  Selectors `yaml:"selectors"`
}

// Timing controls the fixed pauses and bounded waits of a scrape.
type Timing struct {
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	SearchSettle time.Duration `yaml:"search_settle"`
	ScrollPause  time.Duration `yaml:"scroll_pause"`

	// StallLimit is how many unchanged scroll heights in a row are tolerated.
	StallLimit int `yaml:"stall_limit"`
}

type Selectors struct {
	SearchInput browser.Locator `yaml:"search_input"`
	ResultCard  browser.Locator `yaml:"result_card"`
	ResultsFeed browser.Locator `yaml:"results_feed"`
	Fields      Fields          `yaml:"fields"`
}

// Fields locates each listing field inside a result card.
type Fields struct {
	Name     Field `yaml:"name"`
	Phone    Field `yaml:"phone"`
	Category Field `yaml:"category"`
	Address  Field `yaml:"address"`
	Reviews  Field `yaml:"reviews"`
	Rating   Field `yaml:"rating"`
}

// Field reads either the element text or, when Attr is set, an attribute.
// FirstWord keeps only the leading word ("4.5 stars" -> "4.5").
type Field struct {
	browser.Locator `yaml:",inline"`

	Attr      string `yaml:"attr"`
	FirstWord bool   `yaml:"first_word"`
}

const (
	DefaultOutputName = "google_maps_data.csv"
	DefaultMaxResults = 10000
)

// DefaultSiteConfig mirrors the Google Maps markup the scraper was built against.
func DefaultSiteConfig() *SiteConfig {
	return &SiteConfig{
		SearchURL:  "https://www.google.com/maps",
		MaxResults: DefaultMaxResults,
		OutputName: DefaultOutputName,
		Timing: Timing{
			WaitTimeout:  10 * time.Second,
			SearchSettle: 5 * time.Second,
			ScrollPause:  5 * time.Second,
			StallLimit:   5,
		},
		Selectors: Selectors{
			SearchInput: browser.CSSLocator("#searchboxinput"),
			ResultCard:  browser.CSSLocator("div.bfdHYd"),
			ResultsFeed: browser.CSSLocator(`div[role="feed"]`),
			Fields: Fields{
				Name:     Field{Locator: browser.CSSLocator("div.qBF1Pd")},
				Phone:    Field{Locator: browser.CSSLocator("span.UsdlK")},
				Category: Field{Locator: browser.CSSLocator("div.W4Efsd > span:nth-of-type(1) > span")},
				Address:  Field{Locator: browser.Locator{CSS: "span:not(:has(span))", Match: ","}},
				Reviews:  Field{Locator: browser.CSSLocator("span.UY7F9")},
				Rating:   Field{Locator: browser.CSSLocator("span.ZkP5Je"), Attr: "aria-label", FirstWord: true},
			},
		},
	}
}

// GetAppConfig reads basic infrastructure settings from environment variables.
// A .env file in the working directory is loaded first when present.
func GetAppConfig() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		DBPath:       os.Getenv("DB_PATH"),
		ConfigPath:   os.Getenv("CONFIG_PATH"),
		OutputDir:    os.Getenv("OUTPUT_DIR"),
		Driver:       os.Getenv("BROWSER_DRIVER"),
		EmbedModel:   os.Getenv("GEMINI_EMBED_MODEL"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
	}

	// Set defaults if not provided
	if cfg.DBPath == "" {
		cfg.DBPath = "./local-data/extractor.db"
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = "config.yaml"
	}
	if cfg.OutputDir == "" {
		dir, err := DownloadsDir()
		if err != nil {
			return AppConfig{}, err
		}
		cfg.OutputDir = dir
	}
	if cfg.Driver == "" {
		cfg.Driver = "rod"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-004"
	}

	headless, err := parseBool(os.Getenv("HEADLESS"), true)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid HEADLESS value: %w", err)
	}
	cfg.Headless = headless

	return cfg, nil
}

// DownloadsDir is the user's default download location.
func DownloadsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, "Downloads"), nil
}

// LoadSiteConfig reads the YAML file over the defaults. A missing file is not
// an error; keys absent from the file keep their default values.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	cfg := DefaultSiteConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return cfg, nil
}

func (c *SiteConfig) Validate() error {
	switch {
	case c.SearchURL == "":
		return errors.New("search_url is required")
	case c.MaxResults <= 0:
		return errors.New("max_results must be positive")
	case c.Timing.StallLimit < 0:
		return errors.New("timing.stall_limit must not be negative")
	case c.Selectors.SearchInput.IsZero():
		return errors.New("selectors.search_input is required")
	case c.Selectors.ResultCard.IsZero():
		return errors.New("selectors.result_card is required")
	}
	if strings.TrimSpace(c.OutputName) == "" {
		c.OutputName = DefaultOutputName
	}
	return nil
}

func parseBool(value string, fallback bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}
