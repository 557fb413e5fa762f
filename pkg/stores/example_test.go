package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	dir, err := os.MkdirTemp("", "fleet-store")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            filepath.Join(dir, "fleet.db"),
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_RecordActivity shows the store acting as the activity sink.
func ExampleSQLiteStore_RecordActivity() {
	dir, _ := os.MkdirTemp("", "fleet-store")
	defer os.RemoveAll(dir)

	store, _ := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "fleet.db")})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	ev := monitor.Event{
		ID:        "EV-1",
		Timestamp: time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC),
		Actor:     "scheduling",
		Action:    "availability.check",
		Metadata:  map[string]string{monitor.MetaDataAccess: "service_centers"},
	}
	if err := store.RecordActivity(ctx, ev, monitor.Result{IsNormal: true}); err != nil {
		log.Fatal(err)
	}

	recs, _ := store.ListActivity(ctx, nil, nil, 10, 0)
	for _, r := range recs {
		fmt.Printf("%s %s %s\n", r.Actor, r.Action, *r.DataAccess)
	}
	// Output: scheduling availability.check service_centers
}
