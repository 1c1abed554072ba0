package connector

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/config"
)

type fakeConnector struct {
	name   string
	closed *[]string
	err    error
}

func (f *fakeConnector) DB() *sql.DB { return nil }
func (f *fakeConnector) Validate(_ context.Context) error { return nil }
func (f *fakeConnector) Close() error {
	*f.closed = append(*f.closed, f.name)
	return f.err
}

func TestConnectorFactory_Close(t *testing.T) {
	f := NewConnectorFactory(&config.Config{}, zap.NewNop())
	assert.NoError(t, f.Close())

	var closed []string
	f.track(&fakeConnector{name: "postgres", closed: &closed})
	f.track(&fakeConnector{name: "snowflake", closed: &closed, err: errors.New("session expired")})

	err := f.Close()
	assert.ErrorContains(t, err, "session expired")
	assert.Equal(t, []string{"snowflake", "postgres"}, closed)

	// a second close has nothing left to release
	assert.NoError(t, f.Close())
	assert.Len(t, closed, 2)
}
