// Command rates-ingest validates a conversion-rate file and publishes it to
// the commerce platform as the custom object the loyalty engine reads its
// table from. The file is a JSON array of rate objects, optionally
// gzip-compressed:
//
//	[{"currency":"USD","currencyCentAmount":100,"pointAmount":1}, ...]
//
// Platform credentials come from the same configuration sources as the
// server (LOYALTY_ environment variables or config.yaml).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	appkg "github.com/meridianlabs/loyalty-engine/internal/app"
	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
	"github.com/meridianlabs/loyalty-engine/internal/platform"
)

func main() {
	var (
		file   string
		dryRun bool
	)

	flag.StringVar(&file, "file", "", "path to the rates JSON file (.json or .json.gz)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate the file without publishing it")
	flag.Parse()

	if file == "" {
		slog.Error("rates file is required: set --file")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, file, dryRun); err != nil {
		slog.Error("rates ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("rates ingest completed successfully")
}

func run(ctx context.Context, file string, dryRun bool) error {
	raw, err := readRatesFile(file)
	if err != nil {
		return errors.Wrapf(err, "read %s", file)
	}

	table, err := validateRates(raw)
	if err != nil {
		return errors.Wrap(err, "validate rates")
	}

	slog.Info("rates file valid", slog.Int("rates", table.Len()))

	if dryRun {
		slog.Info("dry run, not publishing")
		return nil
	}

	cfg, err := appkg.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	keys := cfg.LoyaltyKeys()

	client, err := platform.NewClient(platform.Config{
		APIURL:       cfg.Platform.APIURL,
		AuthURL:      cfg.Platform.AuthURL,
		ProjectKey:   cfg.Platform.ProjectKey,
		ClientID:     cfg.Platform.ClientID,
		ClientSecret: cfg.Platform.ClientSecret,
		Scopes:       cfg.Platform.Scopes,
		Timeout:      cfg.Platform.Timeout,
	})
	if err != nil {
		return errors.Wrap(err, "create platform client")
	}

	slog.Info("publishing conversion table",
		slog.String("container", keys.RateContainer),
		slog.String("key", keys.RateKey),
	)

	if err := client.UpsertCustomObject(ctx, keys.RateContainer, keys.RateKey, json.RawMessage(raw)); err != nil {
		return errors.Wrap(err, "upsert custom object")
	}

	return nil
}

// readRatesFile reads the file, transparently decompressing .gz input.
func readRatesFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	return io.ReadAll(r)
}

// validateRates parses the file strictly and lints it for entries the engine
// would silently ignore at runtime: duplicate currencies and rates with a
// non-positive cent amount.
func validateRates(raw []byte) (loyalty.Table, error) {
	table := loyalty.ParseTable(raw)
	if table.Empty() {
		return loyalty.Table{}, errors.New("file does not parse as a non-empty rate array; " +
			"every element needs string currency, integer currencyCentAmount and pointAmount")
	}

	// ParseTable accepted the file, so a plain decode cannot fail here.
	var rates []loyalty.Rate
	if err := json.Unmarshal(raw, &rates); err != nil {
		return loyalty.Table{}, errors.Wrap(err, "decode rates")
	}

	seen := make(map[string]bool, len(rates))
	for _, r := range rates {
		cur := strings.ToUpper(r.Currency)
		if seen[cur] {
			slog.Warn("duplicate currency, first entry wins", slog.String("currency", r.Currency))
		}
		seen[cur] = true

		if r.CurrencyCentAmount <= 0 {
			slog.Warn("rate has non-positive cent amount and will never match",
				slog.String("currency", r.Currency),
				slog.Int64("currencyCentAmount", r.CurrencyCentAmount),
			)
		}
	}

	return table, nil
}
