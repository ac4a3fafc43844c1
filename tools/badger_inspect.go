package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Read-only dump of the messaging keyspace, one table per entity kind.
// Handy to eyeball conversation rows and message ordering without a client.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "conv:", "Prefix to scan (conv:, msg:, pair:, member:, ref:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	color.Cyan.Printf("Scanning prefix %q in %s\n", *prefix, *dbPath)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append([]string{rawKey, describe(rawKey, v)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func describe(key string, value []byte) string {
	if len(value) == 0 {
		return "-"
	}

	// conv: and msg: values are JSON records; everything else stores a
	// plain reference.
	var record map[string]any
	if err := json.Unmarshal(value, &record); err != nil {
		return string(value)
	}

	detail := ""
	for _, field := range []string{"participant_a", "participant_b", "sender_id", "body", "read"} {
		if v, ok := record[field]; ok {
			detail += fmt.Sprintf("%s=%v ", field, v)
		}
	}
	for _, field := range []string{"last_activity", "created_at"} {
		if v, ok := record[field].(float64); ok {
			detail += time.Unix(0, int64(v)).UTC().Format("15:04:05")
		}
	}
	return detail
}
