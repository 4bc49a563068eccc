package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/squidcast/internal/api"
	"github.com/lox/squidcast/internal/config"
	"github.com/lox/squidcast/internal/forecast"
	"github.com/lox/squidcast/internal/ingest"
	"github.com/lox/squidcast/internal/model"
	"github.com/lox/squidcast/internal/narrative"
	"github.com/lox/squidcast/internal/store"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`
	DB      string                   `name:"db" env:"SQUIDCAST_DB" default:"data/squidcast.db" help:"Path to SQLite database."`
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Serve forecasts over HTTP."`
	Import   ImportCmd   `cmd:"" help:"Import the historical dataset and hotspot metadata from local CSV files."`
	Fetch    FetchCmd    `cmd:"" help:"Download the historical dataset from an FTP mirror and import it."`
	Forecast ForecastCmd `cmd:"" help:"Run a forecast and print the result as JSON."`
}

// ModelFlags configure the engine shared by serve and forecast.
type ModelFlags struct {
	Weights    string `env:"SQUIDCAST_WEIGHTS" help:"JSON weights for the built-in linear model." type:"existingfile"`
	ServingURL string `env:"SQUIDCAST_SERVING_URL" help:"Base URL of a TF-Serving style REST endpoint."`
	ModelName  string `env:"SQUIDCAST_MODEL_NAME" default:"squid" help:"Model name on the serving endpoint."`

	SequenceLength int      `env:"SQUIDCAST_SEQUENCE_LENGTH" default:"10" help:"Months of history per model input."`
	Features       []string `env:"SQUIDCAST_FEATURES" sep:"," help:"Feature columns in model order (default: the 30-column production list)."`
	LagDepth       int      `env:"SQUIDCAST_LAG_DEPTH" default:"6" help:"Deepest lag derived per variable."`
	RollingWindow  int      `env:"SQUIDCAST_ROLLING_WINDOW" default:"3" help:"Rolling statistics window in months."`
	Ratios         bool     `env:"SQUIDCAST_RATIOS" help:"Derive pairwise covariate ratios."`
	ScaleFeatures  bool     `env:"SQUIDCAST_SCALE_FEATURES" help:"Min-max scale feature columns before model input."`
	Epoch          string   `env:"SQUIDCAST_EPOCH" default:"2023-12" help:"Last historical month (YYYY-MM)."`
	MaxHorizon     int      `env:"SQUIDCAST_MAX_HORIZON" default:"120" help:"Longest forecast accepted, in months."`
	HotspotSource  string   `env:"SQUIDCAST_HOTSPOT_SOURCE" default:"metadata" enum:"metadata,dataset" help:"Where hotspot identities come from."`
}

func (f *ModelFlags) config() (config.Forecast, error) {
	cfg := config.Default()
	cfg.SequenceLength = f.SequenceLength
	if len(f.Features) > 0 {
		cfg.Features = f.Features
	}
	cfg.LagDepth = f.LagDepth
	cfg.RollingWindow = f.RollingWindow
	cfg.Ratios = f.Ratios
	cfg.ScaleFeatures = f.ScaleFeatures
	cfg.MaxHorizon = f.MaxHorizon
	cfg.HotspotSource = f.HotspotSource

	epoch, err := config.ParseEpoch(f.Epoch)
	if err != nil {
		return cfg, err
	}
	cfg.Epoch = epoch
	return cfg, cfg.Validate()
}

func (f *ModelFlags) loadModel(ctx context.Context) (model.Model, error) {
	switch {
	case f.Weights != "" && f.ServingURL != "":
		return nil, errors.New("--weights and --serving-url are mutually exclusive")
	case f.Weights != "":
		return model.LoadLinear(f.Weights)
	case f.ServingURL != "":
		return model.NewServingClient(ctx, f.ServingURL, f.ModelName)
	default:
		return nil, errors.New("one of --weights or --serving-url is required")
	}
}

func (f *ModelFlags) engine(ctx context.Context, st *store.Store) (*forecast.Engine, error) {
	cfg, err := f.config()
	if err != nil {
		return nil, err
	}
	m, err := f.loadModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	records, err := st.GetRecords()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("no historical records; run import or fetch first")
	}
	meta, err := st.GetHotspots()
	if err != nil {
		return nil, fmt.Errorf("load hotspots: %w", err)
	}
	log.Printf("loaded %d records and %d hotspots", len(records), len(meta))

	return forecast.NewEngine(cfg, records, meta, m)
}

type ServeCmd struct {
	ModelFlags `embed:""`

	Port         string   `env:"PORT" default:"8080" help:"HTTP server port."`
	Origins      []string `env:"SQUIDCAST_CORS_ORIGINS" sep:"," help:"Allowed CORS origins."`
	PredictRate  float64  `env:"SQUIDCAST_PREDICT_RATE" default:"2" help:"Sustained /predict requests per second (0 disables throttling)."`
	PredictBurst int      `env:"SQUIDCAST_PREDICT_BURST" default:"4" help:"Burst size for /predict."`
	NoNarrative  bool     `help:"Disable the LLM narrative even when OPENAI_API_KEY is set."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	engine, err := c.engine(ctx, st)
	if err != nil {
		return err
	}

	opts := api.Options{
		Origins:      c.Origins,
		PredictRate:  c.PredictRate,
		PredictBurst: c.PredictBurst,
		Store:        st,
	}
	if !c.NoNarrative {
		if gen, err := narrative.New(); err != nil {
			log.Printf("narrative disabled: %v", err)
		} else {
			opts.Narrator = gen
		}
	}

	return api.NewServer(engine, c.Port, opts).Run(ctx)
}

type ImportCmd struct {
	Dataset  string `type:"existingfile" help:"Historical dataset CSV."`
	Metadata string `type:"existingfile" help:"Hotspot metadata CSV."`
	Replay   bool   `help:"Re-import the most recently stored dataset and metadata files."`
}

func (c *ImportCmd) Run(g *Globals) error {
	if c.Dataset == "" && c.Metadata == "" && !c.Replay {
		return errors.New("nothing to import: pass --dataset, --metadata or --replay")
	}

	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	imp := ingest.NewImporter(st)
	if c.Replay {
		for _, kind := range []string{ingest.KindDataset, ingest.KindMetadata} {
			sum, err := imp.Replay(kind)
			if err != nil {
				return err
			}
			if sum == nil {
				log.Printf("replay: no stored %s file", kind)
			}
		}
		return nil
	}
	if c.Dataset != "" {
		payload, err := os.ReadFile(c.Dataset)
		if err != nil {
			return fmt.Errorf("read dataset: %w", err)
		}
		if _, err := imp.ImportDataset("file", c.Dataset, payload); err != nil {
			return err
		}
	}
	if c.Metadata != "" {
		payload, err := os.ReadFile(c.Metadata)
		if err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
		if _, err := imp.ImportMetadata("file", c.Metadata, payload); err != nil {
			return err
		}
	}
	return nil
}

type FetchCmd struct {
	FTPHost      string        `name:"ftp-host" env:"SQUIDCAST_FTP_HOST" required:"" help:"FTP server as host:port."`
	FTPPath      string        `name:"ftp-path" env:"SQUIDCAST_FTP_PATH" required:"" help:"Path of the dataset CSV."`
	MetadataPath string        `name:"metadata-path" env:"SQUIDCAST_FTP_METADATA_PATH" help:"Path of the hotspot metadata CSV."`
	FTPUser      string        `name:"ftp-user" env:"SQUIDCAST_FTP_USER" default:"anonymous"`
	FTPPassword  string        `name:"ftp-password" env:"SQUIDCAST_FTP_PASSWORD" default:"anonymous"`
	Timeout      time.Duration `default:"30s" help:"Per-connection FTP timeout."`
}

func (c *FetchCmd) source(path string) *ingest.FTPSource {
	src := ingest.NewFTPSource(c.FTPHost, path)
	src.User = c.FTPUser
	src.Password = c.FTPPassword
	src.Timeout = c.Timeout
	return src
}

func (c *FetchCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	imp := ingest.NewImporter(st)

	src := c.source(c.FTPPath)
	payload, err := src.Fetch(ctx)
	if err != nil {
		return err
	}
	if _, err := imp.ImportDataset("ftp", src.Location(), payload); err != nil {
		return err
	}

	if c.MetadataPath != "" {
		src := c.source(c.MetadataPath)
		payload, err := src.Fetch(ctx)
		if err != nil {
			return err
		}
		if _, err := imp.ImportMetadata("ftp", src.Location(), payload); err != nil {
			return err
		}
	}
	return nil
}

type ForecastCmd struct {
	ModelFlags `embed:""`

	Year      int   `required:"" help:"Target year."`
	Month     int   `required:"" help:"Target month (1-12)."`
	Hotspots  []int `help:"Hotspot ids to forecast (default: all)."`
	Narrative bool  `help:"Add an LLM narrative (requires OPENAI_API_KEY)."`
}

type forecastOutput struct {
	*forecast.Result
	Narrative string `json:"narrative,omitempty"`
}

func (c *ForecastCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	engine, err := c.engine(ctx, st)
	if err != nil {
		return err
	}

	res, err := engine.ForecastAll(ctx, c.Hotspots, c.Year, time.Month(c.Month))
	if err != nil {
		return err
	}
	counts := res.Counts()
	log.Printf("forecast %s: horizon %d, %d ok, %d empty, %d failed", res.RunID, res.Horizon,
		counts[forecast.OutcomeOK], counts[forecast.OutcomeEmpty], counts[forecast.OutcomeFailed])

	out := forecastOutput{Result: res}
	if c.Narrative {
		gen, err := narrative.New()
		if err != nil {
			return err
		}
		if out.Narrative, err = gen.Summarize(ctx, res); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func openStore(path string) (*store.Store, func(), error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("squidcast"),
		kong.Description("Monthly squid abundance forecasts for fishing hotspots."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
