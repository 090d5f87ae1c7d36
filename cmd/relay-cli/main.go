// relay-cli is a terminal viewer over the relay's REST surface: room
// history, full-text search, connected users and runtime stats.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"chat-relay/observability"
	"chat-relay/protocol"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Relay base URL")
	room := flag.String("room", "", "Room to list or search in")
	query := flag.String("q", "", "Full-text query, requires -room")
	limit := flag.Int("limit", 20, "Max search results")
	users := flag.Bool("users", false, "List connected users")
	stats := flag.Bool("stats", false, "Show relay stats")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	switch {
	case *stats:
		showStats(client, *addr)
	case *users:
		showUsers(client, *addr)
	case *room != "" && *query != "":
		showMessages(client, fmt.Sprintf("%s/messages/%s/search?q=%s&limit=%d", *addr, *room, *query, *limit),
			fmt.Sprintf("Search %q in #%s", *query, *room))
	case *room != "":
		showMessages(client, fmt.Sprintf("%s/messages/%s", *addr, *room),
			fmt.Sprintf("History of #%s", *room))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func fetch(client *http.Client, url string, out any) {
	resp, err := client.Get(url)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Relay answered %s for %s", resp.Status, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatalf("Bad response body: %v", err)
	}
}

func showMessages(client *http.Client, url, title string) {
	var messages []protocol.WireMessage
	fetch(client, url, &messages)

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(title))

	table := newTable([]string{"Time", "Sender", "Content", "Lang", "Flags"})
	for _, m := range messages {
		flags := ""
		if m.Edited {
			flags += "edited "
		}
		if m.Image != nil {
			flags += fmt.Sprintf("image(%s) ", m.Image.MIME)
		}
		if len(m.Reactions) > 0 {
			flags += fmt.Sprintf("%d reactions", len(m.Reactions))
		}
		table.Append([]string{
			m.CreatedAt.Local().Format("15:04:05"),
			m.Sender,
			truncate(m.Content, 80),
			m.Lang,
			flags,
		})
	}
	table.Render()
	fmt.Printf("\n%d message(s)\n", len(messages))
}

func showUsers(client *http.Client, addr string) {
	var profiles []protocol.WireProfile
	fetch(client, addr+"/users", &profiles)

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("Connected users"))
	table := newTable([]string{"Connection ID", "Display Name"})
	for _, p := range profiles {
		table.Append([]string{p.ID, p.DisplayName})
	}
	table.Render()
}

func showStats(client *http.Client, addr string) {
	var snap observability.Snapshot
	fetch(client, addr+"/stats", &snap)

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("Relay stats"))
	table := newTable([]string{"Metric", "Value"})
	table.Append([]string{"connections_active", fmt.Sprint(snap.ConnectionsActive)})
	table.Append([]string{"connections_total", fmt.Sprint(snap.ConnectionsTotal)})
	table.Append([]string{"messages_relayed", fmt.Sprint(snap.MessagesRelayed)})
	table.Append([]string{"events_accepted", fmt.Sprint(snap.EventsAccepted)})
	table.Append([]string{"events_delivered", fmt.Sprint(snap.EventsDelivered)})
	table.Append([]string{"deliveries_dropped", fmt.Sprint(snap.DeliveriesDropped)})
	table.Append([]string{"process_rss_mb", fmt.Sprint(snap.ProcessRSSMb)})
	table.Append([]string{"uptime_seconds", fmt.Sprint(snap.UptimeSeconds)})
	table.Render()
}

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
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
	return table
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
