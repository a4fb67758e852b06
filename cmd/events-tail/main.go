package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"boxoffice/internal/events"
	"boxoffice/pkg/logging"
)

func main() {
	var (
		addr   = flag.String("addr", "127.0.0.1:7070", "TCP event feed address")
		only   = flag.String("type", "", "print only events of this type, e.g. reconcile.finished")
		pretty = flag.Bool("pretty", true, "pretty print events")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.Component("events-tail")
	backoff := time.Second
	for ctx.Err() == nil {
		err := tail(ctx, *addr, *only, *pretty)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Msg("disconnected")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func tail(ctx context.Context, addr, only string, pretty bool) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	logging.Component("events-tail").Info().Str("addr", addr).Msg("connected")

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Bytes()

		var ev events.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			fmt.Println(string(line))
			continue
		}
		if only != "" && ev.Type != only && ev.Type != events.TypeWelcome {
			continue
		}
		if !pretty {
			fmt.Println(string(line))
			continue
		}
		b, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Println(string(b))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}
