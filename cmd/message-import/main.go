// message-import loads a JSON message export into the analysis database.
//
// The export is an array of messages:
//
//	[{"id": 1, "ts": "2024-05-10T20:00:00Z", "sender": "alex", "content": "hey"}, ...]
//
// Usage:
//
//	message-import -json export.json -db tandem.db
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tandem-insights/tandem/pkg/chunking"
	"github.com/tandem-insights/tandem/pkg/intel"
)

var (
	jsonPath = flag.String("json", "", "Path to JSON message export")
	dbPath   = flag.String("db", "tandem.db", "Path to SQLite database")
)

type exportedMessage struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func main() {
	flag.Parse()

	if *jsonPath == "" {
		fmt.Println("Usage: message-import -json <export.json> -db <tandem.db>")
		os.Exit(1)
	}

	data, err := os.ReadFile(*jsonPath)
	if err != nil {
		fmt.Printf("Error reading JSON: %v\n", err)
		os.Exit(1)
	}

	var exported []exportedMessage
	if err := json.Unmarshal(data, &exported); err != nil {
		fmt.Printf("Error parsing JSON: %v\n", err)
		os.Exit(1)
	}

	store, err := intel.New(*dbPath)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	imported := 0
	skipped := 0
	for _, m := range exported {
		ts, err := time.Parse(time.RFC3339, m.TS)
		if err != nil {
			fmt.Printf("Skipping message %d: bad timestamp %q\n", m.ID, m.TS)
			skipped++
			continue
		}
		err = store.InsertMessage(ctx, chunking.Message{
			ID:        m.ID,
			Timestamp: ts,
			Sender:    m.Sender,
			Content:   m.Content,
		})
		if err != nil {
			fmt.Printf("Error inserting message %d: %v\n", m.ID, err)
			os.Exit(1)
		}
		imported++
	}

	fmt.Printf("Imported %d messages to %s (%d skipped)\n", imported, *dbPath, skipped)
}
