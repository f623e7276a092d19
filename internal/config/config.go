// Package config resolves the server's startup configuration from CLI
// flags (§6), optionally defaulted from an INI file in the style the
// teacher repository uses for its EDS object-dictionary files.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/bu-cs350/imgserve/internal/queue"
	"gopkg.in/ini.v1"
)

// Defaults matching spec.md §6.
const (
	DefaultWorkers = 1
	DefaultPolicy  = "FIFO"
)

// Config is the fully resolved, validated server configuration.
type Config struct {
	QueueSize int
	Workers   int
	Policy    queue.Policy
	Port      int
}

// fileDefaults is the subset of Config an INI file's [server] section may
// override, read before flags are applied so a flag given explicitly on
// the command line always wins.
type fileDefaults struct {
	QueueSize *int
	Workers   *int
	Policy    *string
}

// Parse resolves a Config from args (ordinarily os.Args[1:]). configPath,
// if non-empty, points at an INI file supplying defaults; any of -q, -w,
// -p given explicitly on the command line override it.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("imgserver", flag.ContinueOnError)
	queueSize := fs.Int("q", 0, "maximum number of queued requests (required)")
	workers := fs.Int("w", DefaultWorkers, "number of worker goroutines")
	policy := fs.String("p", DefaultPolicy, "queue policy: FIFO or SJN")
	configPath := fs.String("config", "", "optional INI file with a [server] section of defaults")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("usage: %w", err)
	}

	if *configPath != "" {
		defaults, err := loadFileDefaults(*configPath)
		if err != nil {
			return Config{}, fmt.Errorf("loading config file: %w", err)
		}
		applyDefaults(fs, defaults, queueSize, workers, policy)
	}

	if fs.NArg() != 1 {
		return Config{}, fmt.Errorf("usage: imgserver -q <queue_size> [-w <workers>] [-p <FIFO|SJN>] [-config <path>] <port>")
	}
	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", fs.Arg(0), err)
	}

	if *queueSize <= 0 {
		return Config{}, fmt.Errorf("-q <queue_size> is required and must be positive")
	}

	pol, err := parsePolicy(*policy)
	if err != nil {
		return Config{}, err
	}

	return Config{
		QueueSize: *queueSize,
		Workers:   *workers,
		Policy:    pol,
		Port:      port,
	}, nil
}

func parsePolicy(s string) (queue.Policy, error) {
	switch strings.ToUpper(s) {
	case "FIFO":
		return queue.Fifo, nil
	case "SJN":
		return queue.ShortestJobNext, nil
	default:
		return 0, fmt.Errorf("-p must be FIFO or SJN, got %q", s)
	}
}

func loadFileDefaults(path string) (fileDefaults, error) {
	var d fileDefaults
	f, err := ini.Load(path)
	if err != nil {
		return d, err
	}
	section := f.Section("server")

	if k := section.Key("queue_size"); k.String() != "" {
		v, err := k.Int()
		if err != nil {
			return d, fmt.Errorf("server.queue_size: %w", err)
		}
		d.QueueSize = &v
	}
	if k := section.Key("workers"); k.String() != "" {
		v, err := k.Int()
		if err != nil {
			return d, fmt.Errorf("server.workers: %w", err)
		}
		d.Workers = &v
	}
	if k := section.Key("policy"); k.String() != "" {
		v := k.String()
		d.Policy = &v
	}
	return d, nil
}

// applyDefaults overwrites a flag's current value with the file default
// only if the flag was not explicitly set on the command line.
func applyDefaults(fs *flag.FlagSet, d fileDefaults, queueSize, workers *int, policy *string) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["q"] && d.QueueSize != nil {
		*queueSize = *d.QueueSize
	}
	if !set["w"] && d.Workers != nil {
		*workers = *d.Workers
	}
	if !set["p"] && d.Policy != nil {
		*policy = *d.Policy
	}
}
