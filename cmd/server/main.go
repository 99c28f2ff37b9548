package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"wirecraft.ai/internal/persistence/chunkfile"
	persistlog "wirecraft.ai/internal/persistence/log"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/tuning"
	"wirecraft.ai/internal/sim/world"
	"wirecraft.ai/internal/transport/ws"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var (
		addr       = flag.String("addr", envString("WC_ADDR", ":8080"), "http listen address")
		worldID    = flag.String("world", envString("WC_WORLD", "world_1"), "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", envString("WC_DATA_DIR", "./data"), "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		chunksDir  = flag.String("chunks", "", "chunk file directory (default: <data>/worlds/<world>/chunks, \"none\" disables streaming)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		logLevel  = flag.String("log_level", envString("WC_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
		logFormat = flag.String("log_format", envString("WC_LOG_FORMAT", "text"), "log format (text or json)")
		logFile   = flag.String("log_file", envString("WC_LOG_FILE", ""), "also write logs to this file (rotated)")
		logMaxMB  = flag.Int("log_max_mb", envInt("WC_LOG_MAX_MB", 100), "rotate the log file at this size")
	)
	flag.Parse()

	logger, logCloser, err := newLogger(logConfig{Level: *logLevel, File: *logFile, MaxMB: *logMaxMB, Format: *logFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer logCloser.Close()
	log := logger.WithField("world", *worldID)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	// Optional read model; the simulation never reads it back except to find a snapshot.
	idx, err := openRuntimeIndex(worldDir, *disableDB, log)
	if err != nil {
		log.WithError(err).Fatal("open index backend")
	}
	if idx != nil {
		defer idx.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	snapshotToLoad := resolveSnapshot(ctx, *snapPath, *loadLatest, worldDir, idx, log)

	// Tuning is required for a fresh world; a resume takes its settings from the snapshot.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			log.WithError(tuneErr).Fatal("load tuning")
		}
		log.WithField("path", tp).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != "" && tune.ProtocolVersion != protocol.Version {
		log.Warnf("tuning protocol_version=%s but server speaks %s", tune.ProtocolVersion, protocol.Version)
	}
	if idx != nil {
		if err := idx.UpsertTuning(*worldID, tune); err != nil {
			log.WithError(err).Warn("index backend: upsert tuning")
		}
	}

	cfg, err := world.ConfigFromTuning(*worldID, tune)
	if err != nil {
		log.WithError(err).Fatal("world config")
	}
	w := world.New(cfg)

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			log.WithError(err).Fatal("read snapshot")
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			log.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			log.WithError(err).Fatal("import snapshot")
		}
		log.WithFields(logrus.Fields{
			"snapshot": filepath.Base(snapshotToLoad),
			"tick":     w.CurrentTick(),
			"blocks":   len(snap.Blocks),
		}).Info("resumed from snapshot")
	}

	var store *chunkfile.Store
	if cd := strings.TrimSpace(*chunksDir); cd != "none" {
		if cd == "" {
			cd = filepath.Join(worldDir, "chunks")
		}
		store, err = chunkfile.Open(cd)
		if err != nil {
			log.WithError(err).Fatal("open chunk store")
		}
		defer store.Close()
		w.SetChunkStore(store)
		log.WithField("dir", cd).Info("chunk streaming enabled")
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	if idx != nil {
		w.SetTickLogger(persistlog.TickFanout{tickLog, idx})
		w.SetAuditLogger(persistlog.AuditFanout{auditLog, idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetAuditLogger(auditLog)
	}

	writeSnap := func(snap snapshot.SnapshotV1) error {
		path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return err
		}
		log.WithField("tick", snap.Header.Tick).Debug("snapshot written")
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		return nil
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if err := writeSnap(snap); err != nil {
					log.WithError(err).Error("snapshot write")
				}
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("world stopped")
		}
	}()

	validator, err := protocol.NewValidator()
	if err != nil {
		log.WithError(err).Fatal("compile protocol schemas")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, w.CurrentTick(), w.Metrics())
		if idx != nil {
			writeIndexMetrics(rw, idx.Stats())
		}
	})

	enableAdminHTTP := envBool("WC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("WC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		mux.HandleFunc("/admin/v1/state", adminStateHandler(w))
		mux.HandleFunc("/admin/v1/snapshot", adminSnapshotHandler(w))
	} else {
		log.Info("admin endpoints disabled (WC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, validator, log).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("ListenAndServe")
		cancel()
	}

	<-runDone
	<-writerDone
	// The final snapshot and the chunk files must describe the same tick.
	if err := w.Shutdown(writeSnap); err != nil {
		log.WithError(err).Error("save world on shutdown")
	} else {
		log.WithField("chunks", store != nil).Info("world saved")
	}
	log.WithField("tick", w.CurrentTick()).Info("stopped")
}

func adminStateHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func adminSnapshotHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		tick, err := w.RequestSnapshot(ctx2)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
