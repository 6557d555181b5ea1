package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/devchaudhary24k/vidcastx/internal/buildinfo"
	"github.com/devchaudhary24k/vidcastx/internal/client/cli"
	"github.com/devchaudhary24k/vidcastx/internal/client/config"
	"github.com/devchaudhary24k/vidcastx/internal/flagx"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	args := flagx.FilterArgs(os.Args[1:], []string{"-f", "-t", "-r"})
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	var files []string
	fs.Func("f", "video file to upload (repeatable)", func(v string) error {
		files = append(files, v)
		return nil
	})
	title := fs.String("t", "", "video title")
	resume := fs.String("r", "", "video id of an interrupted upload to resume")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("%v", err)
	}
	if len(files) == 0 {
		log.Fatal("no input files, use -f <path>")
	}
	if *resume != "" && len(files) != 1 {
		log.Fatal("resume takes exactly one -f <path>")
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if *resume != "" {
		if err := app.Resume(ctx, *resume, files[0]); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := app.Run(ctx, files, *title); err != nil {
		log.Fatalf("%v", err)
	}

}
