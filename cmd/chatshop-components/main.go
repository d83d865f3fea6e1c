// chatshop-components administers the persisted component toggles in the
// shared JetStream settings bucket. It edits the same records the component
// registry reads at startup, so a disable issued here takes effect on the
// application's next registration pass.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Chatshop-Plugin/chatshop-sub001/component"
	"github.com/Chatshop-Plugin/chatshop-sub001/settings"
)

const appName = "chatshop-components"

// Set via -ldflags at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("%s %s (built %s)\n", appName, Version, BuildTime)
		return
	}
	if cfg.ShowHelp {
		printDetailedHelp()
		return
	}

	if err := validateFlags(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *CLIConfig, logger *slog.Logger) error {
	args := flag.Args()
	if len(args) == 0 {
		printDetailedHelp()
		return fmt.Errorf("missing command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bucket, cleanup, err := openBucket(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store := settings.NewKVStore(bucket)

	switch args[0] {
	case "list":
		return listToggles(ctx, bucket, store)
	case "enable", "disable":
		if len(args) < 2 {
			return fmt.Errorf("%s requires a component id", args[0])
		}
		return setToggle(store, args[1], args[0] == "enable", logger)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// openBucket connects to NATS and opens the settings bucket
func openBucket(ctx context.Context, cfg *CLIConfig, logger *slog.Logger) (jetstream.KeyValue, func(), error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name(appName),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.NATSURL, err)
	}
	cleanup := func() { nc.Close() }

	js, err := jetstream.New(nc)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err != nil {
		cleanup()
		if errors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, nil, fmt.Errorf("bucket %q does not exist on %s", cfg.Bucket, cfg.NATSURL)
		}
		return nil, nil, fmt.Errorf("open bucket %q: %w", cfg.Bucket, err)
	}

	logger.Debug("Settings bucket opened", "bucket", cfg.Bucket, "server", cfg.NATSURL)
	return bucket, cleanup, nil
}

func listToggles(ctx context.Context, bucket jetstream.KeyValue, store *settings.KVStore) error {
	lister, err := bucket.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var ids []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, component.SettingsKeyPrefix) {
			ids = append(ids, strings.TrimPrefix(key, component.SettingsKeyPrefix))
		}
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		fmt.Println("No component toggles found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tENABLED\tREGISTERED")
	for _, id := range ids {
		record, found, err := readToggle(store, id)
		if err != nil {
			return err
		}
		if !found {
			continue // Deleted between list and read
		}
		fmt.Fprintf(w, "%s\t%t\t%s\n", id, record.Enabled, record.RegisteredAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func setToggle(store *settings.KVStore, id string, enabled bool, logger *slog.Logger) error {
	if err := component.ValidateID(id); err != nil {
		return err
	}

	record, found, err := readToggle(store, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("component %q has no persisted toggle; register it first", id)
	}

	if record.Enabled == enabled {
		fmt.Printf("%s already %s\n", id, toggleWord(enabled))
		return nil
	}

	record.Enabled = enabled
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode toggle for %q: %w", id, err)
	}
	if err := store.Put(component.SettingsKeyPrefix+id, raw); err != nil {
		return err
	}

	logger.Info("Component toggle updated", "component", id, "enabled", enabled)
	fmt.Printf("%s %s\n", id, toggleWord(enabled))
	return nil
}

func readToggle(store *settings.KVStore, id string) (component.ToggleRecord, bool, error) {
	raw, found, err := store.Get(component.SettingsKeyPrefix + id)
	if err != nil {
		return component.ToggleRecord{}, false, err
	}
	if !found {
		return component.ToggleRecord{}, false, nil
	}

	var record component.ToggleRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return component.ToggleRecord{}, false, fmt.Errorf("corrupt toggle record for %q: %w", id, err)
	}
	return record, true, nil
}

func toggleWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
