// Package neo4j implements GraphStorage on a Neo4j database via the
// official Go driver.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/reslab/lergraph/internal/util"
)

// Client wraps the driver with the target database name.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
}

// NewClientParams configures the Neo4j connection. Zero values fall back to
// the NEO4J_* environment variables.
type NewClientParams struct {
	URI      string
	User     string
	Password string
	Database string
}

// NewClient connects and verifies connectivity. A connection that cannot be
// verified is an error; callers treat it as fatal at startup.
func NewClient(ctx context.Context, params NewClientParams) (*Client, error) {
	uri := params.URI
	if uri == "" {
		uri = util.GetEnv("NEO4J_URI")
	}
	if uri == "" {
		return nil, fmt.Errorf("neo4j: NEO4J_URI not set")
	}
	user := params.User
	if user == "" {
		user = util.GetEnvString("NEO4J_USER", "neo4j")
	}
	password := params.Password
	if password == "" {
		password = util.GetEnv("NEO4J_PASSWORD")
	}
	database := params.Database
	if database == "" {
		database = util.GetEnv("NEO4J_DATABASE")
	}

	maxPool := int(util.GetEnvNumeric("NEO4J_MAX_POOL_SIZE", 50))

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: database,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
