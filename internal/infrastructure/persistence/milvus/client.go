// Package milvus implements the vector store on top of Milvus.
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"meeting-rag-api/internal/config"
)

var tracer = otel.Tracer("milvus")

// Client wraps the Milvus SDK client with tracing and collection naming.
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

// NewClient connects to Milvus.
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	ccfg := client.Config{Address: addr}
	if cfg.User != "" && cfg.Password != "" {
		ccfg.Username = cfg.User
		ccfg.Password = cfg.Password
	}

	milvusClient, err := client.NewClient(ctx, ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		milvus: milvusClient,
		config: cfg,
	}, nil
}

func (c *Client) Milvus() client.Client {
	return c.milvus
}

func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck issues a cheap metadata call.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.HasCollection(ctx, c.CollectionName(c.config.Collection)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CollectionName applies the configured prefix to name.
func (c *Client) CollectionName(name string) string {
	if c.config.CollectionPrefix != "" {
		return c.config.CollectionPrefix + "_" + name
	}
	return name
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	ok, err := c.milvus.HasCollection(ctx, c.CollectionName(name))
	if err != nil {
		span.RecordError(err)
	}
	return ok, err
}

// LoadCollection loads the collection into query nodes; loading an already loaded collection is a no-op.
func (c *Client) LoadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	if err := c.milvus.LoadCollection(ctx, c.CollectionName(name), false); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
