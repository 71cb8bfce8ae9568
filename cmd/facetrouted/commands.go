package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/blockberries/facetroute/access"
	"github.com/blockberries/facetroute/config"
	"github.com/blockberries/facetroute/logging"
	"github.com/blockberries/facetroute/manifest"
	"github.com/blockberries/facetroute/store/sqlite"
)

// run dispatches to a subcommand. With no subcommand it serves.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return serveCmd(ctx, args)
	case "token":
		return tokenCmd(args, stdout)
	case "archive":
		return archiveCmd(ctx, args, stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "path to TOML configuration")
	return fs, path
}

func serveCmd(ctx context.Context, args []string) error {
	fs, path := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	logCfg.Level, _ = logging.ParseLevel(cfg.LogLevel)
	log := logging.Build(cfg.ServiceName, logCfg)
	return Run(ctx, cfg, log)
}

// tokenCmd prints a bearer token for a principal.
func tokenCmd(args []string, stdout io.Writer) error {
	fs, path := newFlagSet("token")
	principal := fs.String("principal", "", "principal to issue the token for")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *principal == "" {
		return errors.New("token: -principal is required")
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	tokens, err := access.NewTokens([]byte(cfg.TokenSecret), cfg.TokenIssuer)
	if err != nil {
		return err
	}
	tok, err := tokens.Issue(access.Principal(*principal), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, tok)
	return err
}

// archiveCmd checks a manifest file and stores it in the sqlite archive.
func archiveCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs, path := newFlagSet("archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("archive: expected one manifest file")
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	if cfg.StorePath == "" {
		return errors.New("archive: store_path is not configured")
	}
	f, err := manifest.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	built, err := f.Check(cfg.HasherImpl())
	if err != nil {
		return err
	}
	st, err := sqlite.Open(ctx, cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.SaveManifest(ctx, built.Manifest); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "archived epoch %d root %s (%d routes)\n",
		built.Manifest.Epoch, built.Manifest.Root, len(built.Manifest.Routes))
	return err
}
