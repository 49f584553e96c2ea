// Package mongo provides MongoDB connection management for the notification
// tracking store.
//
// The store's correctness relies entirely on MongoDB's document-level atomic
// conditional updates, so this package focuses on getting a reliably
// connected client with sane pooling defaults: environment-driven
// configuration, a retrying context-aware connect, and a health check for
// orchestration probes.
//
// # Usage
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.ConnectDatabase(ctx, cfg, "notifications")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	storage := tracking.NewMongoStorage(db)
//	if err := storage.EnsureIndexes(ctx, retention.Period); err != nil {
//		log.Fatal(err)
//	}
//
// # Error Handling
//
// Connection failures are wrapped in package sentinels so callers can use
// errors.Is to distinguish connectivity problems from other startup errors.
package mongo
