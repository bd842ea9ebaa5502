package main

import (
	"chat-relay/domain"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	// One of conv:, conv-pair:, conv-member:, msg:, ntf:, ntf-id:
	prefix := flag.String("prefix", "conv:", "Prefix to scan")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "At", "Detail"})
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

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes) && rows < *limit; it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				kind, at, detail, err := describe(key, v)
				if err != nil {
					// Keep listing, one broken record should not hide the others
					fmt.Printf("Error decoding key %s: %v\n", key, err)
					return nil
				}
				table.Append([]string{key, kind, at, detail})
				rows++
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
	fmt.Printf("%d row(s)\n", rows)
}

func describe(key string, value []byte) (string, string, string, error) {
	switch {
	case strings.HasPrefix(key, "conv:"):
		var c domain.Conversation
		if err := json.Unmarshal(value, &c); err != nil {
			return "", "", "", err
		}
		detail := fmt.Sprintf("%s <-> %s seq=%d unread=%v", c.Participants[0], c.Participants[1], c.Sequence, c.Unread)
		return "CONVERSATION", c.UpdatedAt.Format("2006-01-02 15:04:05"), detail, nil
	case strings.HasPrefix(key, "msg:"):
		var m domain.Message
		if err := json.Unmarshal(value, &m); err != nil {
			return "", "", "", err
		}
		return "MESSAGE", m.CreatedAt.Format("15:04:05"), fmt.Sprintf("#%d %s -> %s: %s", m.ID, m.Sender, m.Recipient, truncate(m.Content, 60)), nil
	case strings.HasPrefix(key, "ntf:"):
		var n domain.Notification
		if err := json.Unmarshal(value, &n); err != nil {
			return "", "", "", err
		}
		return "NOTIFICATION", n.CreatedAt.Format("15:04:05"), fmt.Sprintf("read=%t %s", n.Read, truncate(n.Text, 60)), nil
	default:
		return "INDEX", "", string(value), nil
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
