package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/repo"
	"github.com/cobalt-social/cobalt/syntax"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "repo-tool",
		Usage: "development tool for record repositories and CAR files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				EnvVars: []string{"GO_LOG_LEVEL", "LOG_LEVEL"},
			},
		},
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:      "inspect-car",
			Usage:     "load a CAR file and print the commit and record list",
			ArgsUsage: "<path>",
			Action:    runInspectCar,
		},
		&cli.Command{
			Name:      "verify-car",
			Usage:     "load a CAR file, re-compute the tree root, and optionally check the commit signature",
			ArgsUsage: "<path>",
			Action:    runVerifyCar,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "public-key",
					Usage: "signing key to verify against (did:key format)",
				},
			},
		},
		&cli.Command{
			Name:      "create-car",
			Usage:     "create a demo repository with a fresh keypair and write it as a CAR file",
			ArgsUsage: "<path>",
			Action:    runCreateCar,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "did",
					Usage: "account DID for the new repository",
					Value: "did:web:example.com",
				},
				&cli.IntFlag{
					Name:  "record-count",
					Usage: "number of demo records to create",
					Value: 10,
				},
			},
		},
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(h))
	app.RunAndExitOnError()
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func loadRepoFromFile(ctx context.Context, p string) (*repo.Repo, error) {
	if p == "" {
		return nil, fmt.Errorf("need to provide path to CAR file")
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return repo.LoadRepoFromCAR(ctx, f)
}

func runInspectCar(cctx *cli.Context) error {
	ctx := context.Background()
	configLogger(cctx, os.Stderr)

	r, err := loadRepoFromFile(ctx, cctx.Args().First())
	if err != nil {
		return err
	}

	fmt.Printf("did: %s\n", r.Commit.DID)
	fmt.Printf("rev: %s\n", r.Commit.Rev)
	fmt.Printf("data: %s\n", r.Commit.Data)
	fmt.Printf("commit: %s\n", r.CommitCID)

	entries, err := r.ListRecords("")
	if err != nil {
		return err
	}
	for _, ent := range entries {
		fmt.Printf("%s\t%s\n", ent.Path, ent.CID)
	}
	fmt.Printf("total records: %d\n", len(entries))
	return nil
}

func runVerifyCar(cctx *cli.Context) error {
	ctx := context.Background()
	configLogger(cctx, os.Stderr)

	r, err := loadRepoFromFile(ctx, cctx.Args().First())
	if err != nil {
		return err
	}

	computedCID, err := r.MST.RootCID()
	if err != nil {
		return err
	}
	if r.Commit.Data != *computedCID {
		return fmt.Errorf("failed to re-compute tree root: %s != %s", computedCID, r.Commit.Data)
	}
	if err := r.MST.Verify(); err != nil {
		return err
	}
	fmt.Println("verified tree")

	if dk := cctx.String("public-key"); dk != "" {
		pubkey, err := crypto.ParsePublicDIDKey(dk)
		if err != nil {
			return err
		}
		if err := r.Commit.VerifySignature(pubkey); err != nil {
			return err
		}
		fmt.Println("verified signature")
	}
	return nil
}

func runCreateCar(cctx *cli.Context) error {
	ctx := context.Background()
	configLogger(cctx, os.Stderr)

	p := cctx.Args().First()
	if p == "" {
		return fmt.Errorf("need to provide output path for CAR file")
	}

	did, err := syntax.ParseDID(cctx.String("did"))
	if err != nil {
		return err
	}
	priv, err := crypto.GeneratePrivateKeyK256()
	if err != nil {
		return err
	}
	pub, err := priv.PublicKey()
	if err != nil {
		return err
	}

	r := repo.NewRepo(did)
	clk := syntax.NewTIDClock(0)
	writes := make([]repo.WriteOp, cctx.Int("record-count"))
	for i := range writes {
		writes[i] = repo.WriteOp{
			Collection: syntax.NSID("com.example.demo"),
			RecordKey:  syntax.RecordKey(clk.Next().String()),
			Value: map[string]any{
				"$type": "com.example.demo",
				"text":  fmt.Sprintf("demo record %d", i),
			},
		}
	}
	diff, err := r.ApplyWrites(ctx, writes, priv)
	if err != nil {
		return err
	}

	f, err := os.Create(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := r.ExportCAR(ctx, f); err != nil {
		return err
	}

	fmt.Printf("wrote %s at rev %s\n", p, diff.Commit.Rev)
	fmt.Printf("signing key (did:key): %s\n", pub.DIDKey())
	fmt.Printf("secret key (multibase): %s\n", priv.Multibase())
	return nil
}
