// Command pagestored opens a pagestore database and runs a single
// checkpoint against it, the way a cron-driven job would open the
// database and call checkpoint once before exiting.
package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/pagestore/pagestore/blockmgr"
	"github.com/pagestore/pagestore/checkpoint"
	"github.com/pagestore/pagestore/internal/log"
	"github.com/pagestore/pagestore/kv/leveldb"
	"github.com/pagestore/pagestore/schema"
	"github.com/pagestore/pagestore/tree"
	"github.com/pagestore/pagestore/txn"
)

var (
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	DataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for the page and metadata stores",
	}
	NameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "explicit checkpoint name (default: internal)",
	}
	TargetFlag = cli.StringSliceFlag{
		Name:  "target",
		Usage: "tree name to checkpoint (repeatable); default is every open tree, or every tree in metadata when --name or --drop is set",
	}
	DropFlag = cli.StringSliceFlag{
		Name:  "drop",
		Usage: "drop directive: NAME, from=NAME, to=NAME, or from=all (repeatable)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "pagestored"
	app.Usage = "run a checkpoint against a pagestore database"
	app.Flags = []cli.Flag{ConfigFileFlag, DataDirFlag, NameFlag, TargetFlag, DropFlag}
	app.Action = runCheckpoint

	if err := app.Run(os.Args); err != nil {
		log.Crit("pagestored failed", "err", err)
	}
}

func runCheckpoint(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.GlobalString(ConfigFileFlag.Name))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dir := ctx.GlobalString(DataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
	}

	store, err := leveldb.Open(cfg.DataDir, cfg.CacheSizeMB, cfg.Handles)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	bm, err := blockmgr.Open(cfg.DataDir + "/SUPERBLOCK")
	if err != nil {
		return fmt.Errorf("open block manager: %w", err)
	}
	defer bm.Close()

	registry := schema.New()
	registry.Open(tree.New(cfg.MetaTreeName, tree.Regular, store))
	for _, name := range ctx.GlobalStringSlice(TargetFlag.Name) {
		if registry.Lookup(name) == nil {
			registry.Open(tree.New(name, tree.Regular, store))
		}
	}

	engine := txn.NewEngine(cfg.MaxLocks)
	session := txn.NewSession(engine)

	drops, err := parseDrops(ctx.GlobalStringSlice(DropFlag.Name))
	if err != nil {
		return err
	}

	db := &checkpoint.Database{
		Registry:     registry,
		MetaStore:    store,
		Engine:       engine,
		BlockManager: bm,
		MetaTreeName: cfg.MetaTreeName,
	}
	runCfg := checkpoint.Config{
		Target: ctx.GlobalStringSlice(TargetFlag.Name),
		TreeConfig: checkpoint.TreeConfig{
			Name: ctx.GlobalString(NameFlag.Name),
			Drop: drops,
		},
	}

	runCtx := context.Background()
	if err := engine.AcquireSchemaLock(runCtx); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer engine.ReleaseSchemaLock()

	if err := db.Checkpoint(runCtx, session, runCfg); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	log.Info("checkpoint complete", "datadir", cfg.DataDir)
	return nil
}

// parseDrops turns the CLI's repeated --drop strings into the structured
// directives planDrops expects: a bare name, or from=NAME / to=NAME.
func parseDrops(raw []string) ([]checkpoint.DropDirective, error) {
	var out []checkpoint.DropDirective
	for _, r := range raw {
		switch {
		case len(r) > 5 && r[:5] == "from=":
			out = append(out, checkpoint.From(r[5:]))
		case len(r) > 3 && r[:3] == "to=":
			out = append(out, checkpoint.To(r[3:]))
		case r != "":
			out = append(out, checkpoint.Named(r))
		default:
			return nil, fmt.Errorf("pagestored: empty drop directive")
		}
	}
	return out, nil
}
