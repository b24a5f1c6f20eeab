package main

import (
	"log"
	"os"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"

	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/harness"
	plog "github.com/veildb/veil/log"
	"github.com/veildb/veil/metrics"
	"github.com/veildb/veil/metrics/prometheus"
)

type arguments struct {
	Config kong.ConfigFlag `help:"Path to config file" type:"existingfile" optional:""`
	Log    plog.Config     `help:"Configuration for the logger" embed:"" prefix:"log-"`
	Core   conf.Config     `help:"Core configuration" embed:"" prefix:"core-"`
	Run    harness.Config  `help:"Harness configuration" embed:"" prefix:""`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	cfg := arguments{Core: *conf.NewDefaultConfig()}
	parser, err := kong.New(&cfg, kong.Configuration(konghcl.Loader))
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err = parser.Parse(args); err != nil {
		return errors.WithStack(err)
	}
	if err := cfg.Log.Configure(); err != nil {
		return err
	}
	if err := cfg.Run.Validate(); err != nil {
		return err
	}
	var factory metrics.Factory
	if cfg.Core.EnableMetrics {
		factory = prometheus.NewFactory(cfg.Core)
		if err := factory.Start(); err != nil {
			return err
		}
		defer factory.Stop() //nolint:errcheck
	}
	h, err := harness.NewHarness(cfg.Run, &cfg.Core, factory)
	if err != nil {
		return err
	}
	return h.Run()
}
