package main

import (
	"fmt"
	"os"

	imgserve "github.com/bu-cs350/imgserve"
	"github.com/bu-cs350/imgserve/internal/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetLevel(log.InfoLevel)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "usage: %s -q <queue_size> [-w <workers>] [-p <FIFO|SJN>] [-config <path>] <port_number>\n", os.Args[0])
		os.Exit(1)
	}

	srv := imgserve.New(cfg)
	if err := srv.Run(); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}
