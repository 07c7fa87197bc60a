//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/bridge/repository"
	"go_bridge/internal/bridge/service"
	mongoclient "go_bridge/internal/mongo"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

func TestPairRegistryIntegrationFlow(t *testing.T) {
	t.Parallel()

	db := setupIntegrationDatabase(t)
	pairRepo := repository.NewMongoPairRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := pairRepo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}

	registry := service.NewPairRegistry(1, pairRepo)
	thread := int64(42)

	pair, err := registry.Bind(ctx, 1001, -2001, &thread)
	if err != nil {
		t.Fatalf("failed to bind pair: %v", err)
	}
	if pair.ID.IsZero() {
		t.Fatalf("expected pair ID to be assigned")
	}

	conflict, err := registry.Bind(ctx, 1002, -2001, &thread)
	if err != nil {
		t.Fatalf("conflicting bind returned error: %v", err)
	}
	if conflict.SideARoomID != 1001 {
		t.Fatalf("expected conflicting pair to be returned, got room %d", conflict.SideARoomID)
	}

	// 新实例从存储重建，验证持久化
	reloaded := service.NewPairRegistry(1, pairRepo)
	if err := reloaded.Reload(ctx); err != nil {
		t.Fatalf("failed to reload pairs: %v", err)
	}
	if got := reloaded.ResolveBySideA(1001); got == nil || got.SideBChatID != -2001 {
		t.Fatalf("unexpected pair after reload: %+v", got)
	}
	if got := reloaded.ResolveBySideB(-2001, nil, false); got != nil {
		t.Fatalf("threadless lookup without fallback should miss, got %+v", got)
	}

	other := service.NewPairRegistry(2, pairRepo)
	if err := other.Reload(ctx); err != nil {
		t.Fatalf("failed to reload other instance: %v", err)
	}
	if other.Len() != 0 {
		t.Fatalf("pairs leaked across instances: %d", other.Len())
	}

	removed, err := registry.Unbind(ctx, 1001)
	if err != nil {
		t.Fatalf("failed to unbind: %v", err)
	}
	if !removed {
		t.Fatalf("expected unbind to remove the pair")
	}
	if err := reloaded.Reload(ctx); err != nil {
		t.Fatalf("failed to reload pairs: %v", err)
	}
	if reloaded.Len() != 0 {
		t.Fatalf("unexpected pair count after unbind: %d", reloaded.Len())
	}
}

func TestCorrelationIntegrationFlow(t *testing.T) {
	t.Parallel()

	db := setupIntegrationDatabase(t)
	correlationRepo := repository.NewMongoCorrelationRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := correlationRepo.EnsureIndexes(ctx, 86400); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}

	store := service.NewCorrelationStore(correlationRepo)
	pair := &models.ForwardPair{InstanceID: 1, SideARoomID: 1001, SideBChatID: -2001}
	msg := &models.UnifiedMessage{
		ID:       501,
		Platform: models.PlatformA,
		Sender:   models.Sender{ID: "3001", Name: "alice"},
		Chat:     models.Chat{ID: 1001},
		Content:  []models.Segment{&models.Text{Text: "hello from side a"}},
		Metadata: models.Metadata{Seq: 501},
	}

	record := store.RecordForwardedMessage(ctx, msg, 7001, pair)
	if record == nil {
		t.Fatalf("expected record to be stored")
	}

	destID, ok := store.FindDestinationID(ctx, 1, 1001, 501)
	if !ok || destID != 7001 {
		t.Fatalf("unexpected destination: got %d (found=%v), want 7001", destID, ok)
	}

	source := store.FindSourceOfDestination(ctx, 1, -2001, 7001)
	if source == nil || source.Seq != 501 || source.SenderID != "3001" {
		t.Fatalf("unexpected source: %+v", source)
	}

	if err := store.MarkSuppressed(ctx, record.ID); err != nil {
		t.Fatalf("failed to mark suppressed: %v", err)
	}
	stored, err := store.FindBySideB(ctx, 1, -2001, 7001)
	if err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if stored == nil || !stored.SuppressCascadeDelete {
		t.Fatalf("expected record to be suppressed: %+v", stored)
	}

	if _, ok := store.FindDestinationID(ctx, 2, 1001, 501); ok {
		t.Fatalf("records leaked across instances")
	}
}

func setupIntegrationDatabase(t *testing.T) *mongodriver.Database {
	t.Helper()

	uri := envOrDefault("MONGO_URI", "mongodb://localhost:27017")
	baseDatabase := envOrDefault("TEST_DATABASE", "test_go_bridge")
	databaseName := fmt.Sprintf("%s_%d", baseDatabase, time.Now().UnixNano())

	client, err := mongoclient.NewClient(mongoclient.Config{
		URI:      uri,
		Database: databaseName,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		if isCIEnvironment() {
			t.Fatalf("failed to connect MongoDB in CI: %v", err)
		}
		t.Skipf("MongoDB is not available locally, skip integration test: %v", err)
		return nil
	}

	db := client.Database()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := db.Drop(ctx); err != nil {
			t.Errorf("failed to drop integration database %s: %v", databaseName, err)
		}
		if err := client.Close(ctx); err != nil {
			t.Errorf("failed to close MongoDB connection: %v", err)
		}
	})

	return db
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func isCIEnvironment() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}
