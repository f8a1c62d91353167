package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/secassist/ai-backend/internal/builder"
	"go.uber.org/zap"
)

func main() {
	// Registered before builder.BuildVectorizer, which parses all flags
	// while loading the configuration.
	single := flag.String("single", "", "Ingest one PDF file")
	recurse := flag.String("recurse", "", "Ingest every PDF under a directory")
	retrieverName := flag.String("retriever", "", "Only ingest into this embedding model (default: all configured)")

	v, err := builder.BuildVectorizer()
	if err != nil {
		log.Fatal("Failed to build vectorizer:", err)
	}

	if (*single == "") == (*recurse == "") {
		log.Fatal("Exactly one of -single <pdf_file> or -recurse <dir_path> is required")
	}

	names := make([]string, 0, len(v.Config.Retrievers))
	if *retrieverName != "" {
		names = append(names, *retrieverName)
	} else {
		for _, rc := range v.Config.Retrievers {
			names = append(names, rc.Name)
		}
	}

	ctx := context.Background()
	failed := false

	for _, name := range names {
		backend, err := v.Retrievers.Retriever(name)
		if err != nil {
			v.Logger.Error("Invalid retriever", zap.String("retriever", name), zap.Error(err))
			failed = true
			continue
		}

		if *single != "" {
			v.Logger.Info("Vectorizing file", zap.String("path", *single), zap.String("retriever", name))
			if err := v.Coordinator.IngestFile(ctx, backend, v.Config.DocumentsDir, *single); err != nil {
				v.Logger.Error("Vectorization failed", zap.String("path", *single), zap.Error(err))
				failed = true
			}
			continue
		}

		v.Logger.Info("Vectorizing directory", zap.String("path", *recurse), zap.String("retriever", name))
		report, err := v.Coordinator.IngestDir(ctx, backend, *recurse)
		if err != nil {
			v.Logger.Error("Vectorization failed", zap.String("path", *recurse), zap.Error(err))
			failed = true
			continue
		}
		if len(report.Failed) > 0 {
			v.Logger.Warn("Some documents failed to ingest", zap.Strings("failed", report.Failed))
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
