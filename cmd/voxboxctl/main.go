// Package main provides the status CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/voxbox/internal/api/status"
)

var (
	app    = kingpin.New("voxboxctl", "voxbox status client")
	server = app.Flag("server", "Status server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Status token (or set VOXBOX_STATUS_TOKEN env)").Envar("VOXBOX_STATUS_TOKEN").String()

	statusCmd = app.Command("status", "Show every guild's playback state").Default()
	guildCmd  = app.Command("guild", "Show one guild with its recent announcements")
	guildID   = guildCmd.Arg("guild-id", "Guild ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := status.NewClient(*server, *token).Status(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case statusCmd.FullCommand():
		printStatus(resp)
	case guildCmd.FullCommand():
		printGuild(resp, *guildID)
	}
}

func printStatus(resp *status.Response) {
	fmt.Printf("\n=== STATUS (%s) ===\n", resp.Time.Local().Format(time.RFC3339))
	if len(resp.Guilds) == 0 {
		fmt.Println("No guilds.")
		return
	}

	fmt.Printf("%-20s %-10s %-8s %-6s %s\n", "GUILD", "CONNECTED", "STATE", "QUEUE", "NOW PLAYING")
	for _, g := range resp.Guilds {
		current := "-"
		if g.Current != nil {
			current = displayName(g.Current)
		}
		fmt.Printf("%-20s %-10v %-8s %-6d %s\n", g.GuildID, g.Connected, g.State, g.QueueLength, current)
	}
}

func printGuild(resp *status.Response, id string) {
	for _, g := range resp.Guilds {
		if g.GuildID != id {
			continue
		}

		fmt.Printf("\n=== GUILD %s ===\n", g.GuildID)
		fmt.Printf("Connected: %v\n", g.Connected)
		fmt.Printf("Loop Running: %v\n", g.Running)
		fmt.Printf("State: %s\n", g.State)
		fmt.Printf("Queue Length: %d\n", g.QueueLength)
		if g.Current != nil {
			fmt.Println("\nCurrently Playing:")
			fmt.Printf("  Title: %s\n", displayName(g.Current))
			fmt.Printf("  URL: %s\n", g.Current.URL)
			if g.Current.RequestedBy != "" {
				fmt.Printf("  Requested By: %s\n", g.Current.RequestedBy)
			}
			if g.Current.DurationSec > 0 {
				fmt.Printf("  Duration: %s\n", time.Duration(g.Current.DurationSec)*time.Second)
			}
		}
		if len(g.Announcements) > 0 {
			fmt.Println("\nRecent Announcements:")
			for _, a := range g.Announcements {
				fmt.Printf("  #%d %s [%s] %s\n", a.SequenceNo, a.Time.Local().Format("15:04:05"), a.Kind, a.Message)
			}
		}
		return
	}

	fmt.Printf("Error: guild %s not found\n", id)
	os.Exit(1)
}

func displayName(e *status.Entry) string {
	if e.Title != "" {
		return e.Title
	}
	return e.URL
}
