package main

import (
	"os"

	"github.com/chatgraph/chatgraph/internal/ingest"
	"github.com/chatgraph/chatgraph/internal/util"
	"github.com/chatgraph/chatgraph/pkg/logger"
	"github.com/chatgraph/chatgraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	exportDir := util.GetEnv("EXPORT_DIR")
	if len(os.Args) > 1 {
		exportDir = os.Args[1]
	}
	if exportDir == "" {
		logger.Fatal("No export directory given, set EXPORT_DIR or pass it as argument")
	}

	export, err := ingest.ReadExportDir(exportDir)
	if err != nil {
		logger.Fatal("Could not read export", "err", err)
	}

	archive, err := ingest.OpenStore(util.GetEnvString("CHAT_DB", "chatgraph.db"))
	if err != nil {
		logger.Fatal("Could not open chat archive", "err", err)
	}
	defer archive.Close()

	for id, profile := range export.Profiles {
		if err := archive.SaveProfile(profile); err != nil {
			logger.Fatal("Could not save profile", "userId", id, "err", err)
		}
	}
	for contactID, messages := range export.Messages {
		if err := archive.ReplaceMessages(contactID, messages); err != nil {
			logger.Fatal("Could not save history", "contactId", contactID, "err", err)
		}
	}

	logger.Info("Ingested export", "dir", exportDir,
		"profiles", len(export.Profiles), "contacts", len(export.Messages))
}
