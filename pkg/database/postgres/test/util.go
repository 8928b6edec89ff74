package test

import (
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v4/stdlib" //nolint:revive

	"github.com/bagel-payroll/bagel-server/pkg/retry"
	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
)

const (
	containerName     = "postgres"
	containerVersion  = "14"
	containerAutoKill = 120 * time.Second

	port     = 5432
	user     = "localtest"
	password = "localpassword"
	dbname   = "testdb"
)

const (
	postgresUserEnv     = "POSTGRES_USER=" + user
	postgresPasswordEnv = "POSTGRES_PASSWORD=" + password
	postgresDbEnv       = "POSTGRES_DB=" + dbname
)

// StartPostgresDB starts a Docker container using the postgres image and
// returns a client for testing purposes. The returned closeFunc purges the
// container.
func StartPostgresDB(pool *dockertest.Pool) (db *sql.DB, closeFunc func(), err error) {
	closeFunc = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: containerName,
		Tag:        containerVersion,
		Env: []string{
			"listen_addresses = '*'",
			postgresUserEnv,
			postgresPasswordEnv,
			postgresDbEnv,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, closeFunc, errors.Wrapf(err, "failed to start resource")
	}

	closeFunc = func() {
		if err := pool.Purge(resource); err != nil {
			logrus.StandardLogger().WithError(err).Warn("failed to purge postgres container")
		}
	}

	hostAndPort := resource.GetHostPort(fmt.Sprintf("%d/tcp", port))
	databaseUrl := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, hostAndPort, dbname)

	// Expire() never returns an error
	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	_, err = retry.Retry(
		func() error {
			db, err = sql.Open("pgx", databaseUrl)
			if err != nil {
				return err
			}
			return db.Ping()
		},
		retry.Limit(50),
		retry.Backoff(backoff.Constant(500*time.Millisecond), 500*time.Second),
	)
	if err != nil {
		closeFunc()
		return nil, func() {}, errors.Wrap(err, "timed out waiting for postgres container to become available")
	}

	return db, closeFunc, nil
}

// Schema is the DDL a store test suite applies to a fresh database. The
// tables and migrations used in production live outside this repository.
type Schema struct {
	Create string
	Drop   string
}

func (s Schema) create(db *sql.DB) error {
	_, err := db.Exec(s.Create)
	return errors.Wrap(err, "failed to create test tables")
}

func (s Schema) reset(db *sql.DB) error {
	if _, err := db.Exec(s.Drop); err != nil {
		return errors.Wrap(err, "failed to drop test tables")
	}
	return s.create(db)
}

// RunSuite starts postgres, applies schema and hands the database to setup
// before running the package tests. The reset func passed to setup recreates
// the schema between tests. RunSuite exits the process.
func RunSuite(m *testing.M, schema Schema, setup func(db *sql.DB, reset func())) {
	log := logrus.StandardLogger().WithField("method", "RunSuite")

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("failed to create docker pool")
		os.Exit(1)
	}

	db, closeFunc, err := StartPostgresDB(pool)
	if err != nil {
		log.WithError(err).Error("failed to start postgres")
		os.Exit(1)
	}

	if err := schema.create(db); err != nil {
		log.WithError(err).Error("failed to apply schema")
		closeFunc()
		os.Exit(1)
	}

	setup(db, func() {
		if err := schema.reset(db); err != nil {
			log.WithError(err).Error("failed to reset schema")
			closeFunc()
			os.Exit(1)
		}
	})

	code := m.Run()
	db.Close()
	closeFunc()
	os.Exit(code)
}
