package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "client id filter (audits, edits)")
	at := fs.String("at", "", "cell filter x,y (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	opts := dbQueryOpts{Limit: *limit, Actor: strings.TrimSpace(*actor)}
	if strings.TrimSpace(*at) != "" {
		v, err := parseVec2(*at)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -at:", err)
			os.Exit(2)
		}
		opts.At = &v
	}
	if err := runDBQuery(os.Stdout, db, q, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] snapshots|ticks|audits|edits|blocks|meta")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type dbQueryOpts struct {
	Limit int
	Actor string
	At    *[2]int
}

func runDBQuery(out io.Writer, db *sql.DB, q string, o dbQueryOpts) error {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	switch q {
	case "snapshots":
		return eachRow(db, `SELECT tick,path,world_id,blocks,pending,loaded_chunks FROM snapshots ORDER BY tick DESC LIMIT ?`, []any{o.Limit},
			func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick         int64  `json:"tick"`
					Path         string `json:"path"`
					WorldID      string `json:"world_id"`
					Blocks       int    `json:"blocks"`
					Pending      int    `json:"pending"`
					LoadedChunks int    `json:"loaded_chunks"`
				}
				err := rows.Scan(&r.Tick, &r.Path, &r.WorldID, &r.Blocks, &r.Pending, &r.LoadedChunks)
				return r, err
			}, out)

	case "ticks":
		return eachRow(db, `SELECT tick,digest,edits,popped,mutations FROM ticks ORDER BY tick DESC LIMIT ?`, []any{o.Limit},
			func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick      int64  `json:"tick"`
					Digest    string `json:"digest"`
					Edits     int    `json:"edits"`
					Popped    int    `json:"popped"`
					Mutations int    `json:"mutations"`
				}
				err := rows.Scan(&r.Tick, &r.Digest, &r.Edits, &r.Popped, &r.Mutations)
				return r, err
			}, out)

	case "audits":
		where := []string{"1=1"}
		var args []any
		if o.Actor != "" {
			where = append(where, "actor=?")
			args = append(args, o.Actor)
		}
		if o.At != nil {
			where = append(where, "x=? AND y=?")
			args = append(args, o.At[0], o.At[1])
		}
		args = append(args, o.Limit)
		return eachRow(db, `SELECT tick,actor,action,x,y,from_block,to_block,COALESCE(reason,'') FROM audits WHERE `+strings.Join(where, " AND ")+` ORDER BY tick DESC, seq DESC LIMIT ?`, args,
			func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick   int64  `json:"tick"`
					Actor  string `json:"actor"`
					Action string `json:"action"`
					X      int    `json:"x"`
					Y      int    `json:"y"`
					From   string `json:"from,omitempty"`
					To     string `json:"to,omitempty"`
					Reason string `json:"reason,omitempty"`
				}
				err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.X, &r.Y, &r.From, &r.To, &r.Reason)
				return r, err
			}, out)

	case "edits":
		query := `SELECT tick,seq,client_id,op,op_json FROM edits ORDER BY tick DESC, seq DESC LIMIT ?`
		args := []any{o.Limit}
		if o.Actor != "" {
			query = `SELECT tick,seq,client_id,op,op_json FROM edits WHERE client_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
			args = []any{o.Actor, o.Limit}
		}
		return eachRow(db, query, args,
			func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick     int64           `json:"tick"`
					Seq      int             `json:"seq"`
					ClientID string          `json:"client_id"`
					Op       string          `json:"op"`
					OpJSON   json.RawMessage `json:"op_json"`
				}
				var raw string
				err := rows.Scan(&r.Tick, &r.Seq, &r.ClientID, &r.Op, &raw)
				r.OpJSON = json.RawMessage(raw)
				return r, err
			}, out)

	case "blocks":
		return eachRow(db, `SELECT kind,COUNT(*),MAX(tick) FROM snapshot_blocks GROUP BY kind ORDER BY kind`, nil,
			func(rows *sql.Rows) (any, error) {
				var r struct {
					Kind  string `json:"kind"`
					Count int    `json:"count"`
					Tick  int64  `json:"tick"`
				}
				err := rows.Scan(&r.Kind, &r.Count, &r.Tick)
				return r, err
			}, out)

	case "meta":
		return eachRow(db, `SELECT key,value FROM meta ORDER BY key`, nil,
			func(rows *sql.Rows) (any, error) {
				var r struct {
					Key   string `json:"key"`
					Value string `json:"value"`
				}
				err := rows.Scan(&r.Key, &r.Value)
				return r, err
			}, out)
	}
	return fmt.Errorf("unknown query: %s", q)
}

func eachRow(db *sql.DB, query string, args []any, scan func(*sql.Rows) (any, error), out io.Writer) error {
	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		printJSON(out, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
