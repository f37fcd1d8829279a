package main

import (
	"flag"
	"os"
	"time"

	"ridesync/internal/config"
	"ridesync/internal/simulator"
	"ridesync/pkg/clock"
	"ridesync/pkg/logger"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address for the trip API and websocket hub")
	assignAfter := flag.Duration("assign-after", 3*time.Second, "delay before a driver is assigned")
	activateAfter := flag.Duration("activate-after", 6*time.Second, "delay between assignment and trip start")
	completeAfter := flag.Duration("complete-after", 15*time.Second, "delay between trip start and completion")
	failEvery := flag.Int("fail-every", 0, "fail the search on every Nth booking (0 disables)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
		Output: "stdout",
		Colors: config.IsDevelopment(),
	})
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	script := simulator.ScriptConfig{
		AssignAfter:      *assignAfter,
		ActivateAfter:    *activateAfter,
		CompleteAfter:    *completeAfter,
		LocationInterval: 2 * time.Second,
		FailSearchEvery:  *failEvery,
	}

	srv := simulator.NewServer(script, clock.Real(), log)
	if err := srv.Run(*addr); err != nil {
		log.WithError(err).Fatal("Simulator exited")
	}
}
