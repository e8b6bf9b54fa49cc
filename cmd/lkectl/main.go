package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/edvin/kubelease/internal/chatclient"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "say":
		cmdSay(os.Args[2:])
	case "clusters":
		cmdClusters(os.Args[2:])
	case "chat":
		cmdChat(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func addrFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("KUBELEASE_URL")
	if def == "" {
		def = "http://localhost:8080"
	}
	return fs.String("addr", def, "kubelease API base URL (env KUBELEASE_URL)")
}

func cmdSay(args []string) {
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lkectl say [-addr URL] <message...>")
		os.Exit(1)
	}

	replies, err := chatclient.New(*addr).Say(context.Background(), strings.Join(fs.Args(), " "))
	if err != nil {
		fatal(err)
	}
	for _, reply := range replies {
		fmt.Println(reply)
	}
}

func cmdClusters(args []string) {
	fs := flag.NewFlagSet("clusters", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)

	clusters, err := chatclient.New(*addr).Clusters(context.Background())
	if err != nil {
		fatal(err)
	}
	if len(clusters) == 0 {
		fmt.Println("No clusters.")
		return
	}

	fmt.Printf("%-24s %-12s %-20s %s\n", "NAME", "STATUS", "EXPIRES", "ERROR")
	for _, c := range clusters {
		expires := c.ExpiresAt.Local().Format("2006-01-02 15:04")
		if c.Expired {
			expires += " (!)"
		}
		fmt.Printf("%-24s %-12s %-20s %s\n", c.Name, c.Status, expires, c.LastError)
	}
}

func cmdChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := chatclient.New(*addr).Connect(ctx)
	if err != nil {
		fatal(err)
	}
	defer sess.Close()

	go func() {
		for {
			reply, err := sess.Receive(ctx)
			if err != nil {
				stop()
				return
			}
			fmt.Printf("< %s\n", reply)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sess.Send(ctx, line); err != nil {
			fatal(err)
		}
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: lkectl <command> [options]

Commands:
  say <message...>   Send one chat message and print the replies
  clusters           List leased clusters
  chat               Interactive chat session over WebSocket`)
}
