// Command board is a headless whiteboard participant. It joins a relay
// session, replays a gesture script from stdin, and can export the shared
// canvas to PDF on exit.
package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prudhvinik1/syncboard/internal/config"
	"github.com/prudhvinik1/syncboard/internal/discovery"
	"github.com/prudhvinik1/syncboard/internal/input"
	"github.com/prudhvinik1/syncboard/internal/render"
	"github.com/prudhvinik1/syncboard/internal/replica"
	"github.com/prudhvinik1/syncboard/internal/session"
	"github.com/prudhvinik1/syncboard/internal/view"
)

// settle is how long to keep receiving after the script ends.
const settle = time.Second

func main() {
	godotenv.Load()

	cfg, err := config.LoadBoardConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Find the relay
	serverURL := cfg.ServerURL
	if serverURL == "" {
		log.Printf("SERVER_URL not set, browsing for %s...", discovery.ServiceType)
		serverURL, err = discovery.BrowseFirst(cfg.DiscoverTimeout)
		if err != nil {
			log.Fatalf("Failed to discover relay: %v", err)
		}
	}

	// 2. Pick or create the session
	var sessionID uuid.UUID
	if cfg.SessionID != "" {
		sessionID, err = uuid.Parse(cfg.SessionID)
		if err != nil {
			log.Fatalf("Invalid SESSION_ID: %v", err)
		}
	} else {
		s, err := session.CreateSession(ctx, serverURL, cfg.SessionName)
		if err != nil {
			log.Fatalf("Failed to create session: %v", err)
		}
		sessionID = s.ID
		log.Printf("Created session %s; share SESSION_ID=%s", s.Name, s.ID)
	}

	// 3. Join
	var surface view.Renderer = render.NewRecorder()
	pdf := render.NewPDF(render.DefaultPDFScale)
	if cfg.ExportPath != "" {
		surface = pdf
	}

	client := session.NewClient(serverURL, sessionID)
	joinCtx, cancelJoin := context.WithTimeout(ctx, 10*time.Second)
	board, err := replica.New(joinCtx, client, surface, replica.Config{
		Input:           input.Config{Rate: cfg.ThrottleRate},
		CheckpointEvery: cfg.CheckpointEvery,
	})
	cancelJoin()
	if err != nil {
		log.Fatalf("Failed to join session %s: %v", sessionID, err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- board.Run(runCtx) }()

	// 4. Play the script, then keep listening for a moment
	scriptDone := make(chan struct{})
	go func() {
		defer close(scriptDone)
		play(runCtx, board)
	}()

	select {
	case <-scriptDone:
		select {
		case <-time.After(settle):
		case <-ctx.Done():
		}
	case <-ctx.Done():
	case <-client.Done():
		log.Printf("Relay connection closed: %v", client.Err())
	}

	cancelRun()
	if err := <-runDone; err != nil {
		log.Printf("Replica stopped: %v", err)
	}
	board.Close()

	snapshot := board.Snapshot()
	log.Printf("Canvas has %d strokes at sequence %d", snapshot.Len(), board.Applied())

	// 5. Export
	if cfg.ExportPath != "" {
		if err := pdf.WriteFile(cfg.ExportPath); err != nil {
			log.Fatalf("Failed to export PDF: %v", err)
		}
		_, segments := pdf.Stats()
		log.Printf("Exported %d strokes (%d segments) to %s", snapshot.Len(), segments, cfg.ExportPath)
	}
}

func play(ctx context.Context, board *replica.Replica) {
	scanner := bufio.NewScanner(os.Stdin)
	line := 0
	for scanner.Scan() {
		line++
		cmd, ok, err := parseCommand(scanner.Text())
		if err != nil {
			log.Printf("line %d: %v", line, err)
			continue
		}
		if !ok {
			continue
		}

		switch cmd.op {
		case opDown:
			board.PointerDown()
		case opMove:
			board.PointerMove(cmd.point)
		case opUp:
			board.PointerUp()
		case opClear:
			board.Clear()
		case opSleep:
			select {
			case <-time.After(cmd.pause):
			case <-ctx.Done():
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Failed to read script: %v", err)
	}
}
