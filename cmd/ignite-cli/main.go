// Command ignite-cli is an interactive client for talking to an ignited
// server over the wire protocol.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ignitedb/ignite/internal/client"
	"github.com/spf13/cobra"
)

func main() {
	var addr string

	root := &cobra.Command{
		Use:   "ignite-cli",
		Short: "Interactive Ignite client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(addr)
		},
	}

	root.Flags().StringVar(&addr, "addr", "127.0.0.1:6380", "address of the ignited server")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRepl(addr string) error {
	c, err := client.Dial(addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer c.Close()

	fmt.Println("Ignite CLI - connected to", addr)
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("ignite> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])

		switch cmd {
		case "exit", "quit":
			return nil

		case "help":
			printHelp()

		case "set":
			if len(fields) < 3 {
				fmt.Println("usage: set <key> <value>")
				continue
			}
			value := strings.Join(fields[2:], " ")
			if err := c.Set(fields[1], []byte(value)); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("OK")

		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			value, ok, err := c.Get(fields[1])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if !ok {
				fmt.Println("(not found)")
				continue
			}
			fmt.Println(string(value))

		case "rm":
			if len(fields) != 2 {
				fmt.Println("usage: rm <key>")
				continue
			}
			if err := c.Rm(fields[1]); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("OK")

		default:
			fmt.Printf("unknown command %q; type help\n", cmd)
		}
	}

	return scanner.Err()
}

func printHelp() {
	fmt.Println("Commands: set <key> <value> | get <key> | rm <key> | help | exit")
}
