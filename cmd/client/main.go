package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"chatrelay/internal/client"
	"chatrelay/internal/model"
)

// Minimal line-oriented chat client. Plain lines post to the current
// session; "/<id>" switches to a session and a bare "/" creates one.
// Incoming messages print as user#session >> text.
func main() {
	base := os.Getenv("CHAT_URL")
	if base == "" {
		base = "http://localhost:8000"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(base)
	if len(os.Args) < 2 || os.Args[1] == "guest" {
		if err := c.GuestLogin(ctx); err != nil {
			log.Fatalf("guest login: %v", err)
		}
	} else {
		// Seeded users authenticate with username == password.
		if err := c.Login(ctx, os.Args[1], os.Args[1]); err != nil {
			log.Fatalf("login: %v", err)
		}
	}

	var mu sync.Mutex
	dest := ""

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := c.Listen(ctx, func(msg model.Message) {
			mu.Lock()
			dest = msg.Session
			mu.Unlock()
			fmt.Printf("%s#%s >> %s\n", msg.Origin.Username, msg.Session, strings.TrimSpace(msg.Body))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("listen: %v", err)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			target := line[1:]
			if target == "" {
				session, err := c.CreateSession(ctx)
				if err != nil {
					fmt.Printf("create session: %v\n", err)
					continue
				}
				target = session.ID
			}
			mu.Lock()
			dest = target
			mu.Unlock()
			fmt.Printf("Sending to session %s\n", target)
			continue
		}

		mu.Lock()
		target := dest
		mu.Unlock()
		if target == "" {
			fmt.Println("No session yet. Use / to create one.")
			continue
		}
		if _, err := c.Post(ctx, target, line); err != nil {
			fmt.Printf("post: %v\n", err)
		}
	}

	stop()
	wg.Wait()
}
