package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/cursor"
	"github.com/embeddkv/embeddkv/engine"
	"github.com/embeddkv/embeddkv/txn"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("embeddkv Demo: Environments, Databases, Transactions, Cursors")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	demoBasicCRUD()
	fmt.Println()
	demoDuplicateKeys()
	fmt.Println()
	demoTransactions()
	fmt.Println()
	demoCrashRecovery()
	fmt.Println()
	demoRecordNumbers()
	fmt.Println()
	demoMetrics()
}

func demoBasicCRUD() {
	fmt.Println("\n### Basic CRUD on an in-memory environment ###")
	fmt.Println(strings.Repeat("-", 40))

	env, err := engine.Create("", engine.Flags{InMemory: true}, engine.DefaultParams())
	if err != nil {
		log.Fatal(err)
	}
	defer env.Close()

	db, err := env.CreateDatabase("users", engine.DBFlags{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("✓ Created database \"users\"")

	testData := map[string]string{
		"user:1001": `{"name": "Alice", "age": 30, "city": "NYC"}`,
		"user:1002": `{"name": "Bob", "age": 25, "city": "SF"}`,
		"user:1003": `{"name": "Charlie", "age": 35, "city": "LA"}`,
	}

	fmt.Println("\n[Writing data]")
	for key, value := range testData {
		if _, err := db.Insert([]byte(key), []byte(value), btree.InsertFlags{}, nil); err != nil {
			log.Printf("Error writing %s: %v", key, err)
		} else {
			fmt.Printf("  INSERT %s\n", key)
		}
	}

	fmt.Println("\n[Reading data]")
	for key := range testData {
		value, err := db.Find([]byte(key), nil)
		if err != nil {
			log.Printf("Error reading %s: %v", key, err)
		} else {
			fmt.Printf("  FIND %s -> %s\n", key, truncate(string(value), 40))
		}
	}

	fmt.Println("\n[Updating data]")
	updated := `{"name": "Alice Updated", "age": 31, "city": "NYC"}`
	if _, err := db.Insert([]byte("user:1001"), []byte(updated), btree.InsertFlags{Overwrite: true}, nil); err != nil {
		log.Printf("Error updating user:1001: %v", err)
	}
	value, _ := db.Find([]byte("user:1001"), nil)
	fmt.Printf("  FIND user:1001 -> %s\n", truncate(string(value), 50))

	fmt.Println("\n[Deleting data]")
	if err := db.Erase([]byte("user:1003"), nil); err != nil {
		log.Printf("Error deleting user:1003: %v", err)
	} else {
		fmt.Println("  ERASE user:1003")
	}
	if _, err := db.Find([]byte("user:1003"), nil); err != nil {
		fmt.Println("  FIND user:1003 -> key not found (as expected)")
	}

	fmt.Printf("\n[Statistics] db_count=%d\n", db.Count())
}

func demoDuplicateKeys() {
	fmt.Println("\n### Duplicate keys and cursor iteration ###")
	fmt.Println(strings.Repeat("-", 40))

	env, err := engine.Create("", engine.Flags{InMemory: true}, engine.DefaultParams())
	if err != nil {
		log.Fatal(err)
	}
	defer env.Close()

	db, err := env.CreateDatabase("tags", engine.DBFlags{EnableDuplicateKeys: true})
	if err != nil {
		log.Fatal(err)
	}

	tags := []string{"go", "storage", "btree"}
	for _, tag := range tags {
		flags := btree.InsertFlags{Duplicate: true, DupMode: common.DupInsertLast}
		if _, err := db.Insert([]byte("post:42"), []byte(tag), flags, nil); err != nil {
			log.Printf("Error inserting tag %q: %v", tag, err)
		}
	}
	fmt.Println("✓ Inserted 3 duplicate values under key \"post:42\"")

	c := db.Cursor(nil)
	defer c.Close()
	fmt.Println("\n[Walking the database with a cursor]")
	dir := cursor.MoveFirst
	for {
		if err := c.Move(cursor.MoveFlags{Direction: dir}); err != nil {
			break
		}
		key, _ := c.Key()
		record, _ := c.Record()
		fmt.Printf("  %s -> %s\n", key, record)
		dir = cursor.MoveNext
	}
}

func demoTransactions() {
	fmt.Println("\n### Transaction isolation ###")
	fmt.Println(strings.Repeat("-", 40))

	env, err := engine.Create("", engine.Flags{InMemory: true, EnableTransactions: true}, engine.DefaultParams())
	if err != nil {
		log.Fatal(err)
	}
	defer env.Close()

	db, err := env.CreateDatabase("accounts", engine.DBFlags{})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := db.Insert([]byte("balance"), []byte("100"), btree.InsertFlags{}, nil); err != nil {
		log.Fatal(err)
	}

	tx := db.Begin("transfer", txn.Flags{})
	fmt.Println("✓ Began transaction \"transfer\"")

	if _, err := db.Insert([]byte("balance"), []byte("80"), btree.InsertFlags{Overwrite: true}, tx); err != nil {
		log.Fatal(err)
	}
	fmt.Println("  (uncommitted) UPDATE balance -> 80")

	if _, err := db.Find([]byte("balance"), nil); err != nil {
		fmt.Printf("  outside reader sees: %v (txn is still open)\n", err)
	}

	value, _ := db.Find([]byte("balance"), tx)
	fmt.Printf("  reader inside the same transaction sees: %s\n", value)

	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("✓ Committed")

	value, _ = db.Find([]byte("balance"), nil)
	fmt.Printf("  outside reader now sees: %s\n", value)
}

func demoCrashRecovery() {
	fmt.Println("\n### Reopening a file-backed environment ###")
	fmt.Println(strings.Repeat("-", 40))

	dir, err := os.MkdirTemp("", "embeddkv-demo-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := dir + "/demo.db"

	env, err := engine.Create(path, engine.Flags{EnableTransactions: true, AutoRecovery: true}, engine.DefaultParams())
	if err != nil {
		log.Fatal(err)
	}
	db, err := env.CreateDatabase("ledger", engine.DBFlags{})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := db.Insert([]byte("entry:1"), []byte("deposit 50"), btree.InsertFlags{}, nil); err != nil {
		log.Fatal(err)
	}
	fmt.Println("✓ Wrote one record and closed cleanly")
	if err := env.Close(); err != nil {
		log.Fatal(err)
	}

	reopened, err := engine.Open(path, engine.Flags{EnableTransactions: true, AutoRecovery: true}, engine.Params{})
	if err != nil {
		log.Fatal(err)
	}
	defer reopened.Close()

	ledger, err := reopened.OpenDatabase("ledger")
	if err != nil {
		log.Fatal(err)
	}
	v, err := ledger.Find([]byte("entry:1"), nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✓ Reopened environment, found: entry:1 -> %s\n", v)
}

func demoRecordNumbers() {
	fmt.Println("\n### Record-number auto-increment ###")
	fmt.Println(strings.Repeat("-", 40))

	env, err := engine.Create("", engine.Flags{InMemory: true}, engine.DefaultParams())
	if err != nil {
		log.Fatal(err)
	}
	defer env.Close()

	db, err := env.CreateDatabase("events", engine.DBFlags{RecordNumber32: true})
	if err != nil {
		log.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		key, err := db.Insert(nil, []byte(fmt.Sprintf("event-%d", i)), btree.InsertFlags{}, nil)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  INSERT (auto key) -> %d\n", binary.BigEndian.Uint32(key))
	}
}

func demoMetrics() {
	fmt.Println("\n### Process metrics ###")
	fmt.Println(strings.Repeat("-", 40))

	params := engine.DefaultParams()
	params.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.Disabled)

	env, err := engine.Create("", engine.Flags{InMemory: true}, params)
	if err != nil {
		log.Fatal(err)
	}
	defer env.Close()

	db, err := env.CreateDatabase("metrics-demo", engine.DBFlags{})
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		if _, err := db.Insert(key, []byte("v"), btree.InsertFlags{}, nil); err != nil {
			log.Fatal(err)
		}
	}

	m := env.Metrics()
	fmt.Printf("  splits=%d merges=%d page_faults=%d cache_hits=%d\n", m.Splits, m.Merges, m.PageFaults, m.CacheHits)
	fmt.Printf("  %d prometheus collectors registered (not started in this demo)\n", len(env.PrometheusCollectors()))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
