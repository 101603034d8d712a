package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	goquerycache "github.com/dgduncan/go-query-cache"
	"github.com/dgduncan/go-query-cache/events"
	"github.com/dgduncan/go-query-cache/tokens"
	"github.com/dgduncan/go-query-cache/tokens/dynamodb"
	"github.com/dgduncan/go-query-cache/tokens/local"
	"github.com/dgduncan/go-query-cache/tokens/postgres"
	"github.com/dgduncan/go-query-cache/tokens/sqlite"
)

const defaultBaseURL = "http://localhost:3000/api/"

// app is the wiring shared by every command.
type app struct {
	ctx     context.Context
	logger  *slog.Logger
	store   tokens.Store
	session *tokens.Session
	api     *events.API
	out     io.Writer

	closers []func() error
}

func newApp(ctx context.Context, cli *CLI) (*app, error) {
	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := goquerycache.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if cli.BaseURL != "" {
		cfg.BaseURL = cli.BaseURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	a := &app{ctx: ctx, logger: logger, out: os.Stdout}

	a.store, err = a.openTokenStore(ctx, cli)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	a.session = tokens.NewSession()
	if _, err := a.session.Load(ctx, a.store); err != nil {
		return nil, errors.Join(fmt.Errorf("load session: %w", err), a.Close())
	}

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: goquerycache.NewAuthTransport(a.session)(http.DefaultTransport),
	}
	exec, err := goquerycache.NewHTTPExecutor(httpClient, cfg.BaseURL, logger)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	graph := events.DefaultTagGraph()
	if cfg.TagGraphFile != "" {
		if graph, err = events.LoadTagGraphFile(cfg.TagGraphFile); err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}

	reg := goquerycache.NewRegistry()
	if err := events.Define(reg, graph); err != nil {
		return nil, errors.Join(err, a.Close())
	}

	client := goquerycache.New(exec, reg, &cfg, nil, logger)
	a.api = events.NewAPI(client, a.session)
	return a, nil
}

func (a *app) openTokenStore(ctx context.Context, cli *CLI) (tokens.Store, error) {
	switch cli.TokenStore {
	case "local":
		return local.NewBasicStore(), nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cli.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "postgres":
		db, err := sql.Open("postgres", cli.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return postgres.New(ctx, db, &postgres.Config{DeleteExpiredItems: true}, a.logger)
	case "dynamodb":
		awscfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := awsdynamodb.NewFromConfig(awscfg)
		if cli.DynamoDBSetup {
			if err := dynamodb.CreateTable(ctx, client, cli.DynamoDBTable); err != nil {
				return nil, err
			}
		}
		return dynamodb.New(ctx, client, &dynamodb.Config{
			Table:              cli.DynamoDBTable,
			DeleteExpiredItems: true,
		})
	default:
		return nil, fmt.Errorf("unknown token store %q", cli.TokenStore)
	}
}

func (a *app) saveSession() error {
	return a.session.Save(a.ctx, a.store)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
