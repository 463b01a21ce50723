package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/browser"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/embedder"
	"mspro-labs/map-extractor/internal/pipeline"
)

const queryPrompt = "Enter your search query for Google Maps: "

// scrapeFlags override the env and YAML settings for a single run.
type scrapeFlags struct {
	max       int
	driver    string
	headless  bool
	outDir    string
	noJournal bool
}

var scrapeOpts scrapeFlags

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape [query...]",
	Short: "Search Google Maps and save the unique results as CSV",
	Long: `Opens Google Maps, searches for the query, keeps scrolling the result list until
no new places load (or --max is reached), removes duplicate places and writes
the rest to a new CSV file. An existing file is never overwritten.

Without a query argument you are prompted for one.`,
	Example: `  map-extractor scrape "coffee shops in Lisbon"
  map-extractor scrape --max 200 --driver chromedp dentists near Austin`,
	Args: cobra.ArbitraryArgs,
	Run:  runScrape,
}

func init() {
	addScrapeFlags(scrapeCmd)
	rootCmd.AddCommand(scrapeCmd)
}

func addScrapeFlags(c *cobra.Command) {
	f := c.Flags()
	f.IntVar(&scrapeOpts.max, "max", config.DefaultMaxResults, "stop after this many scraped cards")
	f.StringVar(&scrapeOpts.driver, "driver", "", "browser driver: rod or chromedp (default from BROWSER_DRIVER)")
	f.BoolVar(&scrapeOpts.headless, "headless", true, "run the browser without a window")
	f.StringVar(&scrapeOpts.outDir, "out-dir", "", "directory for the CSV file (default from OUTPUT_DIR, then ~/Downloads)")
	f.BoolVar(&scrapeOpts.noJournal, "no-journal", false, "do not record the run in the local database")
}

// applyScrapeFlags copies explicitly set flags over the loaded configuration.
func applyScrapeFlags(c *cobra.Command, appCfg *config.AppConfig, siteCfg *config.SiteConfig) {
	f := c.Flags()
	if f.Changed("max") {
		siteCfg.MaxResults = scrapeOpts.max
	}
	if f.Changed("driver") {
		appCfg.Driver = scrapeOpts.driver
	}
	if f.Changed("headless") {
		appCfg.Headless = scrapeOpts.headless
	}
	if f.Changed("out-dir") {
		appCfg.OutputDir = scrapeOpts.outDir
	}
}

func runScrape(c *cobra.Command, args []string) {
	out := c.OutOrStdout()

	// 1. Load Config
	appCfg, err := config.GetAppConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	siteCfg, err := config.LoadSiteConfig(appCfg.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load site config: %v", err)
	}
	applyScrapeFlags(c, &appCfg, siteCfg)
	if siteCfg.MaxResults <= 0 {
		log.Fatalf("--max must be positive, got %d", siteCfg.MaxResults)
	}

	// 2. Get the query
	query := strings.Join(args, " ")
	if len(args) == 0 {
		if query, err = readQuery(c.InOrStdin(), out); err != nil {
			log.Fatalf("Failed to read query: %v", err)
		}
	}
	if strings.TrimSpace(query) != "" {
		fmt.Fprintln(out, "Opening Google Maps and searching for the query...")
	}

	// 3. Journal and auto-embed (optional, never block a scrape)
	var (
		journal   pipeline.Journal
		afterSave func(context.Context) error
	)
	if !scrapeOpts.noJournal {
		database, err := db.Connect(appCfg.DBPath)
		if err != nil {
			log.Printf("⚠️ Warning: run journal unavailable: %v", err)
		} else {
			defer database.Close()
			journal = pipeline.DBJournal{DB: database}
			if appCfg.GeminiAPIKey != "" {
				afterSave = autoEmbed(database, appCfg)
			}
		}
	}

	// 4. Run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := &pipeline.Pipeline{
		Site:      siteCfg,
		OutputDir: appCfg.OutputDir,
		Open:      browserOpener(appCfg),
		Journal:   journal,
		AfterSave: afterSave,
	}
	outcome := p.Run(ctx, query)
	fmt.Fprintln(out, outcome.Message())
}

// autoEmbed embeds the listings of the run that was just journaled.
func autoEmbed(database *sql.DB, appCfg config.AppConfig) func(context.Context) error {
	return func(ctx context.Context) error {
		log.Println("🤖 Starting automatic embedding...")
		aiClient, err := ai.NewClient(ctx, appCfg.GeminiAPIKey, appCfg.EmbedModel)
		if err != nil {
			return fmt.Errorf("could not initialize AI for auto-embedding: %w", err)
		}
		defer aiClient.Close()

		_, err = embedder.Run(ctx, database, aiClient, embedder.DefaultLimiter())
		return err
	}
}

func browserOpener(appCfg config.AppConfig) pipeline.OpenFunc {
	return func(ctx context.Context) (browser.Session, error) {
		return browser.Open(ctx, browser.Options{
			Driver:      appCfg.Driver,
			Headless:    appCfg.Headless,
			DownloadDir: appCfg.OutputDir,
		})
	}
}

// readQuery prompts on w and reads one line from r. EOF without input yields
// an empty query.
func readQuery(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, queryPrompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
