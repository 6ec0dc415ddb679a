//go:build integration

package repo

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/wb-go/wbf/dbpg"
)

const migrationsDir = "../../migrations/postgres"

type PostgresSuite struct {
	repositorySuite
	container *tcpostgres.PostgresContainer
	pg        *Postgres
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("festpass"),
		tcpostgres.WithUsername("festpass"),
		tcpostgres.WithPassword("festpass"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := dbpg.New(dsn, nil, &dbpg.Options{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
	s.Require().NoError(err)

	log := zerolog.Nop()
	s.pg, err = NewPostgres(db, &log)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.pg.MigrateDown(migrationsDir))
	s.Require().NoError(s.pg.MigrateUp(migrationsDir))
	s.repo = s.pg
}

func (s *PostgresSuite) TestPingAndMigrationsAreRepeatable() {
	s.Require().NoError(s.pg.Ping(s.ctx))
	s.Require().NoError(s.pg.MigrateUp(migrationsDir))
}
