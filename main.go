package main

import (
	"bufio"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stashdb/cli"
	"stashdb/config"
	"stashdb/storage"
	"stashdb/version"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatal(err)
	}

	eng, err := storage.Open(cfg.DataFile, cfg.Fsync)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("metrics on %s/metrics", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down...", sig)
		os.Exit(0)
	}()

	fmt.Printf("%s\nType 'help' for commands, 'exit' to quit.\n", version.String())

	session := cli.NewSession(eng)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if cfg.LogLevel >= 1 {
			log.Printf("command: %s", line)
		}
		out, err := session.Execute(line)
		if err == cli.ErrExit {
			fmt.Println("Goodbye.")
			return
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("stdin: %v", err)
	}
}
