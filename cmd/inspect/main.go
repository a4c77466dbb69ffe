package main

import (
	"flag"
	"flash-feed/domain"
	"flash-feed/infrastructure/storage"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	conversation := flag.String("conversation", domain.DefaultConversation.String(), "Conversation to dump")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	records, err := storage.NewMessageStore(db, slog.Default(), 1).Scan(domain.ConversationID(*conversation))
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Time", "Sender", "Message ID", "Body"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, r := range records {
		// First 8 characters of the ID are enough to tell messages apart
		displayID := r.ID.String()[:8]
		table.Append([]string{
			r.Key,
			r.CreatedAt.Local().Format(time.DateTime),
			r.Sender,
			displayID,
			r.Body,
		})
	}
	table.Render()
	fmt.Printf("\n%d message(s) in %s\n", len(records), *conversation)
}
