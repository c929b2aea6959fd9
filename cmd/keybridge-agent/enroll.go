package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/lodgeon/keybridge/internal/cloudapi"
)

func runEnroll(args []string) error {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	server := fs.String("server", "", "Server URL (e.g., https://cards.example.com)")
	key := fs.String("key", "", "Enrollment key")
	name := fs.String("name", "", "Desk name (e.g., front-desk-1)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *server == "" {
		return fmt.Errorf("--server is required")
	}
	if *key == "" {
		return fmt.Errorf("--key is required")
	}

	resp, err := cloudapi.Enroll(context.Background(), *server, *key, *name)
	if err != nil {
		return err
	}

	fmt.Println("Enrollment successful!")
	fmt.Printf("  Agent ID: %s\n", resp.AgentID)
	fmt.Printf("  Hotel ID: %s\n", resp.HotelID)
	fmt.Println()
	fmt.Println("Add the following to your agent application.yaml:")
	fmt.Println()
	fmt.Printf("server:\n")
	fmt.Printf("  url: %q\n", *server)
	fmt.Printf("  agent_id: %q\n", resp.AgentID)
	fmt.Printf("  token: %q\n", resp.Token)
	fmt.Println()
	fmt.Println("The token is shown only once; store it safely.")

	return nil
}
