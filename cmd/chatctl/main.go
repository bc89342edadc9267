package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type conversation struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Pinned       bool   `json:"pinned"`
	Unread       int    `json:"unread"`
	LastActivity int64  `json:"lastActivity"`
}

type message struct {
	ID        string `json:"id"`
	Origin    string `json:"origin"`
	State     string `json:"state"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:8790", "daemon control address")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := resty.New().
		SetBaseURL("http://" + *addrFlag).
		SetTimeout(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch args[0] {
	case "status":
		err = cmdStatus(ctx, c, *jsonFlag)
	case "list":
		err = cmdList(ctx, c, *jsonFlag)
	case "refresh":
		err = cmdRefresh(ctx, c)
	case "open":
		err = withArg(args, "open <conversation>", func(id string) error {
			return cmdPost(ctx, c, "/conversations/"+id+"/open")
		})
	case "close":
		err = cmdPost(ctx, c, "/selection/close")
	case "messages":
		err = withArg(args, "messages <conversation>", func(id string) error {
			return cmdMessages(ctx, c, id, *jsonFlag)
		})
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: chatctl send <conversation> <text>")
			os.Exit(1)
		}
		err = cmdSend(ctx, c, args[1], strings.Join(args[2:], " "))
	case "read":
		err = withArg(args, "read <conversation>", func(id string) error {
			return cmdPost(ctx, c, "/conversations/"+id+"/read")
		})
	case "reconnect":
		err = cmdPost(ctx, c, "/reconnect")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func withArg(args []string, usage string, fn func(string) error) error {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chatctl "+usage)
		os.Exit(1)
	}
	return fn(args[1])
}

func cmdStatus(ctx context.Context, c *resty.Client, asJSON bool) error {
	var resp struct {
		Connection string `json:"connection"`
		Active     string `json:"active"`
	}
	if err := get(ctx, c, "/status", &resp); err != nil {
		return err
	}
	if asJSON {
		return printJSON(resp)
	}
	fmt.Printf("connection: %s\n", resp.Connection)
	if resp.Active != "" {
		fmt.Printf("open:       %s\n", resp.Active)
	}
	return nil
}

func cmdList(ctx context.Context, c *resty.Client, asJSON bool) error {
	var resp struct {
		Conversations []conversation    `json:"conversations"`
		Active        string            `json:"active"`
		Typing        map[string]string `json:"typing"`
	}
	if err := get(ctx, c, "/conversations", &resp); err != nil {
		return err
	}
	if asJSON {
		return printJSON(resp)
	}
	for _, conv := range resp.Conversations {
		marker := " "
		if conv.ID == resp.Active {
			marker = ">"
		}
		pin := "  "
		if conv.Pinned {
			pin = "* "
		}
		badge := ""
		if conv.Unread > 0 {
			badge = fmt.Sprintf(" (%d)", conv.Unread)
		}
		if name, ok := resp.Typing[conv.ID]; ok {
			badge += fmt.Sprintf(" [%s is typing]", name)
		}
		fmt.Printf("%s %s%s  %s%s\n", marker, pin, conv.ID, conv.Name, badge)
	}
	return nil
}

func cmdRefresh(ctx context.Context, c *resty.Client) error {
	resp, err := c.R().SetContext(ctx).Post("/conversations/refresh")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("daemon: %s", resp.Status())
	}
	fmt.Println("refreshed")
	return nil
}

func cmdMessages(ctx context.Context, c *resty.Client, id string, asJSON bool) error {
	var resp struct {
		Messages []message `json:"messages"`
		Typing   string    `json:"typing"`
	}
	if err := get(ctx, c, "/conversations/"+id+"/messages", &resp); err != nil {
		return err
	}
	if asJSON {
		return printJSON(resp)
	}
	for _, m := range resp.Messages {
		ts := time.UnixMilli(m.Timestamp).Format("15:04")
		prefix := "<-"
		if m.Origin == "local-user" {
			prefix = "->"
			if m.State == "sending" {
				prefix = "~>"
			}
		}
		fmt.Printf("%s %s %s\n", ts, prefix, m.Content)
	}
	if resp.Typing != "" {
		fmt.Printf("   %s is typing...\n", resp.Typing)
	}
	return nil
}

func cmdSend(ctx context.Context, c *resty.Client, id, text string) error {
	resp, err := c.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": text}).
		Post("/conversations/" + id + "/messages")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("send rejected: %s", resp.Status())
	}
	fmt.Println("sent")
	return nil
}

func cmdPost(ctx context.Context, c *resty.Client, path string) error {
	resp, err := c.R().SetContext(ctx).Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("daemon: %s", resp.Status())
	}
	return nil
}

func get(ctx context.Context, c *resty.Client, path string, out any) error {
	resp, err := c.R().SetContext(ctx).SetResult(out).Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("daemon: %s", resp.Status())
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                    Show daemon and connection state")
	fmt.Fprintln(os.Stderr, "  list                      List conversations")
	fmt.Fprintln(os.Stderr, "  refresh                   Re-fetch the conversation list")
	fmt.Fprintln(os.Stderr, "  open <conversation>       Open a conversation")
	fmt.Fprintln(os.Stderr, "  close                     Close the open conversation")
	fmt.Fprintln(os.Stderr, "  messages <conversation>   Show cached messages")
	fmt.Fprintln(os.Stderr, "  send <conversation> <text> Send a message")
	fmt.Fprintln(os.Stderr, "  read <conversation>       Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  reconnect                 Force a live channel reconnect")
	fmt.Fprintln(os.Stderr, "")
}
