// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sandia-minimega/keyd/internal/auth"
	"github.com/sandia-minimega/keyd/internal/command"
	"github.com/sandia-minimega/keyd/internal/config"
	"github.com/sandia-minimega/keyd/internal/pubsub"
	"github.com/sandia-minimega/keyd/internal/rdb"
	"github.com/sandia-minimega/keyd/internal/replication"
	"github.com/sandia-minimega/keyd/internal/session"
	"github.com/sandia-minimega/keyd/internal/store"
	log "github.com/sandia-minimega/keyd/pkg/minilog"

	"golang.org/x/net/netutil"
)

const banner = `keyd, a Redis-protocol-compatible key/value server`

var (
	f_port        = flag.Int("port", 6380, "port to listen on")
	f_dir         = flag.String("dir", ".", "directory for the snapshot file")
	f_dbfilename  = flag.String("dbfilename", "dump.rdb", "snapshot filename within -dir")
	f_replicaof   = flag.String("replicaof", "", "host:port of the primary to replicate from")
	f_config      = flag.String("config", "", "optional YAML config file; flags override file values")
	f_maxconns    = flag.Int("maxconns", 10000, "maximum concurrent client connections")
	f_requireauth = flag.Bool("requireauth", false, "require AUTH before any other command")
	f_password    = flag.String("requirepass", "", "default user's password when -requireauth is set")

	// shutdown receives SIGINT/SIGTERM through signal.Notify; main shuts
	// down after reading the first one.
	shutdown = make(chan os.Signal, 1)
)

func usage() {
	fmt.Println(banner)
	fmt.Println("usage: keyd [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	log.Init()
	ring := log.AddRingLogger("ring", 256, log.DEBUG)

	fmt.Println(banner)

	cfg, err := config.Load(*f_config)
	if err != nil {
		log.Fatal("config: %v", err)
	}
	// flags win over file values; only fall back to the file when the
	// flag is still at its zero/default.
	if !flagWasSet("port") && cfg.Port != 0 {
		*f_port = cfg.Port
	}
	if !flagWasSet("dir") && cfg.Dir != "" {
		*f_dir = cfg.Dir
	}
	if !flagWasSet("dbfilename") && cfg.DBFilename != "" {
		*f_dbfilename = cfg.DBFilename
	}
	if !flagWasSet("replicaof") && cfg.ReplicaOf != "" {
		*f_replicaof = cfg.ReplicaOf
	}
	if !flagWasSet("requireauth") && cfg.RequireAuth {
		*f_requireauth = true
	}

	st := store.New()
	authTable := auth.New()
	if *f_requireauth {
		if *f_password == "" {
			log.Fatalln("requireauth set without -requirepass")
		}
		authTable.SetUserPassword("default", *f_password)
	}

	dbPath := filepath.Join(*f_dir, *f_dbfilename)
	loadSnapshot(st, dbPath)

	ctx := &command.Context{
		Store:     st,
		PubSub:    pubsub.New(),
		Auth:      authTable,
		Config:    cfg.ToParams(),
		ReplID:    generateReplID(),
		StartTime: time.Now(),
		DebugLog:  ring,
	}

	var repl *replication.Hub
	if *f_replicaof == "" {
		repl = replication.NewHub(st)
		ctx.Repl = repl
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *f_port))
	if err != nil {
		log.Fatal("listen: %v", err)
	}
	ln = netutil.LimitListener(ln, *f_maxconns)
	log.Info("listening on %v", ln.Addr())

	done := make(chan struct{})

	var replicaClient *replication.Client
	if *f_replicaof != "" {
		replicaClient = replication.NewClient(*f_replicaof, *f_port, st, ctx)
		go replicaClient.Run(done)
	}

	go acceptLoop(ln, ctx)

	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown
	log.Warnln("caught signal, shutting down")

	close(done)
	ln.Close()

	if err := saveSnapshot(st, dbPath); err != nil {
		log.Errorln(err)
	}
}

func acceptLoop(ln net.Listener, ctx *command.Context) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Info("accept loop exiting: %v", err)
			return
		}
		log.Debug("client connected: %v", conn.RemoteAddr())
		go session.New(conn, ctx).Serve()
	}
}

func loadSnapshot(st *store.Store, path string) {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error("opening snapshot %s: %v", path, err)
		}
		return
	}
	defer f.Close()

	file, err := rdb.Read(f)
	if err != nil {
		log.Error("loading snapshot %s: %v", path, err)
		return
	}
	rdb.LoadInto(file, st)
	log.Info("loaded snapshot %s", path)
}

func saveSnapshot(st *store.Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot %s: %w", path, err)
	}
	defer f.Close()

	if err := rdb.Write(f, rdb.FromStore(st)); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	log.Info("saved snapshot %s", path)
	return nil
}

// flagWasSet reports whether name was explicitly passed on the command
// line, so config-file values only fill in flags the operator left at
// their default.
func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// generateReplID produces a short opaque id for this process's FULLRESYNC
// replies; uniqueness only needs to hold within one operator's fleet of
// running primaries, not cryptographic randomness.
func generateReplID() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}
