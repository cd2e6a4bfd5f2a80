package client

import (
	"context"
	"time"

	"bookly/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Client holds the backend connections a process opened. Unused ones stay nil.
type Client struct {
	Mongo *MongoClient
	SQL   *gorm.DB
	Redis *redis.Client
}

type MongoClient struct {
	Client *mongo.Client
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) GracefulShutdown(log *logger.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if c.Mongo != nil && c.Mongo.Client != nil {
		if err := c.Mongo.Client.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect from MongoDB", "error", err)
		} else {
			log.Info("Disconnected from MongoDB")
		}
	}
	if c.SQL != nil {
		if sqlDB, err := c.SQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("Failed to close SQL database", "error", err)
			} else {
				log.Info("Closed SQL database")
			}
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		} else {
			log.Info("Closed Redis client")
		}
	}
}
