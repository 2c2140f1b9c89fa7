package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/target/namescreen/internal/bootstrap"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/service"
)

// adminInfra holds the connections one command opened.
type adminInfra struct {
	db    *sql.DB
	redis redis.UniversalClient
	queue core.WorkQueue
}

func (a *adminApp) databaseConfig() bootstrap.DatabaseConfig {
	return bootstrap.DatabaseConfig{DBConfig: a.cfg.Postgres, RedisConfig: a.cfg.Redis, Logger: a.logger}
}

// connect opens Postgres when the store needs it and Redis when wantRedis is set.
func (a *adminApp) connect(wantRedis bool) (*adminInfra, error) {
	infra := &adminInfra{}
	if a.cfg.NeedsPostgres() {
		db, err := bootstrap.ConnectDB(a.databaseConfig())
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.db = db
	}
	if wantRedis {
		client, err := bootstrap.ConnectRedis(a.databaseConfig())
		if err != nil {
			_ = infra.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		infra.redis = client
	}
	return infra, nil
}

func (a *adminApp) adapterDeps(infra *adminInfra) bootstrap.AdapterDeps {
	return bootstrap.AdapterDeps{Config: &a.cfg, DB: infra.db, RedisClient: infra.redis, Logger: a.logger}
}

// jobService builds a JobService over the configured store.
func (a *adminApp) jobService(ctx context.Context, infra *adminInfra) (*service.JobService, bootstrap.Stores, error) {
	stores, err := bootstrap.BuildStores(ctx, a.adapterDeps(infra))
	if err != nil {
		return nil, bootstrap.Stores{}, err
	}
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:      stores.Jobs,
		Retention: a.cfg.Screening.Retention(),
		Logger:    a.logger,
	})
	if err != nil {
		return nil, bootstrap.Stores{}, err
	}
	return jobs, stores, nil
}

func (i *adminInfra) Close() error {
	var errs []error
	if i.queue != nil {
		errs = append(errs, i.queue.Close())
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Close())
	}
	if i.db != nil {
		errs = append(errs, i.db.Close())
	}
	return errors.Join(errs...)
}
