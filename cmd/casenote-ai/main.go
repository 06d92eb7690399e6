package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/casenote-ai/cli/config"
	"github.com/casenote-ai/cli/internal/chunker"
	"github.com/casenote-ai/cli/internal/db"
	"github.com/casenote-ai/cli/internal/documents"
	"github.com/casenote-ai/cli/internal/embeddings"
	"github.com/casenote-ai/cli/internal/ingest"
	"github.com/casenote-ai/cli/internal/logger"
	"github.com/casenote-ai/cli/internal/ollama"
	"github.com/casenote-ai/cli/internal/rag"
)

const usage = `Usage: casenote-ai [flags] <command> [command flags]

Commands:
  migrate        Run database migrations
  create-case    Create a case record
  ingest         Import case notes, chunk them, and embed the chunks
  embed          Embed any chunks still waiting for embeddings
  ask            Ask a question about a case within a date window
  status         Show chunk and embedding counts

Flags:
  -verbose       Enable debug logging

Run 'casenote-ai <command> -h' for command flags.`

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
	}
	flag.Parse()
	logger.SetVerbose(*verbose)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("Error loading config: %v", err)
	}

	ctx := context.Background()
	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "migrate":
		err = runMigrate(ctx, cfg)
	case "create-case":
		err = runCreateCase(ctx, cfg, args)
	case "ingest":
		err = runIngest(ctx, cfg, args)
	case "embed":
		err = runEmbed(ctx, cfg)
	case "ask":
		err = runAsk(ctx, cfg, args)
	case "status":
		err = runStatus(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s\n", command, usage)
		os.Exit(1)
	}
	if err != nil {
		fatalf("Error: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func connect(cfg *config.Config) (*db.DB, error) {
	database, err := db.New(cfg.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// startEmbeddings connects to the embedding backend and waits for it to
// answer a probe before any real work is attempted.
func startEmbeddings(ctx context.Context, cfg *config.Config) (*embeddings.Service, error) {
	svc := embeddings.New(cfg.Ollama.BaseURL, cfg.Embeddings.Model, cfg.Embeddings.Dimension)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedding service: %w", err)
	}
	logger.Debug("embedding model %s ready (%d dimensions)", cfg.Embeddings.Model, svc.Dimension())
	return svc, nil
}

func newPipeline(cfg *config.Config, database *db.DB, svc *embeddings.Service) *ingest.Pipeline {
	ch := chunker.New(cfg.Chunking.MaxChars, cfg.Chunking.MinOverlapChars, cfg.Chunking.MaxOverlapChars)
	return ingest.New(database, svc, ch, cfg.Ingest.EmbedBatchSize, cfg.Ingest.Workers)
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("Migrations completed successfully")
	return nil
}

func runCreateCase(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("create-case", flag.ExitOnError)
	number := fs.String("number", "", "Case number (required)")
	client := fs.String("client", "", "Client name (required)")
	fs.Parse(args)

	if *number == "" || *client == "" {
		return fmt.Errorf("both -number and -client are required")
	}

	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	c, err := database.CreateCase(ctx, *number, *client)
	if err != nil {
		return err
	}
	fmt.Printf("Created case %s (%s)\n", c.CaseNumber, c.ID)
	return nil
}

func runIngest(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "Notes file: .json array of notes, or a .txt/.pdf note body")
	caseNumber := fs.String("case", "", "Case number (for .txt/.pdf import)")
	caseworker := fs.String("caseworker", "", "Caseworker name (for .txt/.pdf import)")
	noteType := fs.String("type", "", "Note type (for .txt/.pdf import)")
	date := fs.String("date", "", "Note date as YYYY-MM-DD (for .txt/.pdf import, defaults to today)")
	fs.Parse(args)

	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	switch {
	case *file == "":
		logger.Info("no input file given, processing notes already in the database")
	case strings.HasSuffix(strings.ToLower(*file), ".json"):
		if err := importNotesJSON(ctx, database, *file); err != nil {
			return err
		}
	default:
		if err := importNoteFile(ctx, database, *file, *caseNumber, *caseworker, *noteType, *date); err != nil {
			return err
		}
	}

	svc, err := startEmbeddings(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := newPipeline(cfg, database, svc).Run(ctx)
	if stats != nil {
		fmt.Printf("Chunked %d notes (%d skipped, %d failed), inserted %d chunks, embedded %d chunks\n",
			stats.NotesChunked, stats.NotesSkipped, stats.NotesFailed,
			stats.ChunksInserted, stats.ChunksEmbedded)
	}
	return err
}

func importNotesJSON(ctx context.Context, database *db.DB, path string) error {
	inputs, err := ingest.ReadNotesFile(path)
	if err != nil {
		return err
	}
	for i := range inputs {
		if err := database.InsertNote(ctx, inputs[i].ToNote()); err != nil {
			return fmt.Errorf("failed to insert note %d: %w", i, err)
		}
	}
	fmt.Printf("Imported %d notes\n", len(inputs))
	return nil
}

// importNoteFile reads a .txt or .pdf file and stores its text as a
// single note on the given case.
func importNoteFile(ctx context.Context, database *db.DB, path, caseNumber, caseworker, noteType, date string) error {
	if caseNumber == "" {
		return fmt.Errorf("-case is required when importing a note file")
	}

	c, err := database.GetCaseByNumber(ctx, caseNumber)
	if err != nil {
		return err
	}

	createdAt := time.Now()
	if date != "" {
		createdAt, err = time.Parse("2006-01-02", date)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", date, err)
		}
	}

	parser, err := documents.ForFile(path)
	if err != nil {
		return err
	}
	text, err := parser.Parse(path)
	if err != nil {
		return err
	}

	input := ingest.NoteInput{
		CaseID:         c.ID,
		Text:           text,
		CaseworkerName: caseworker,
		NoteType:       noteType,
		CreatedAt:      createdAt,
	}
	if err := input.Validate(); err != nil {
		return err
	}
	if err := database.InsertNote(ctx, input.ToNote()); err != nil {
		return err
	}
	fmt.Printf("Imported note from %s\n", path)
	return nil
}

// runEmbed is the explicit re-embedding sweep. Chunks left without
// embeddings by an interrupted or failed ingest are picked up here
// rather than at query time.
func runEmbed(ctx context.Context, cfg *config.Config) error {
	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	svc, err := startEmbeddings(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	var stats ingest.Stats
	err = newPipeline(cfg, database, svc).EmbedPendingChunks(ctx, &stats)
	fmt.Printf("Embedded %d chunks\n", stats.ChunksEmbedded)
	return err
}

func runAsk(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	caseNumber := fs.String("case", "", "Case number (required)")
	from := fs.String("from", "", "Start date as YYYY-MM-DD (required)")
	to := fs.String("to", "", "End date as YYYY-MM-DD (required)")
	historyFile := fs.String("history", "", "JSON file with prior conversation turns")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("a question is required: ask -case C-1024 -from 2024-01-01 -to 2024-06-30 \"...\"")
	}
	question := strings.Join(fs.Args(), " ")

	if *caseNumber == "" || *from == "" || *to == "" {
		return fmt.Errorf("-case, -from, and -to are required")
	}
	start, err := time.Parse("2006-01-02", *from)
	if err != nil {
		return fmt.Errorf("invalid -from %q: %w", *from, err)
	}
	end, err := time.Parse("2006-01-02", *to)
	if err != nil {
		return fmt.Errorf("invalid -to %q: %w", *to, err)
	}

	var history []rag.ConversationTurn
	if *historyFile != "" {
		history, err = readHistory(*historyFile)
		if err != nil {
			return err
		}
	}

	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	c, err := database.GetCaseByNumber(ctx, *caseNumber)
	if err != nil {
		return err
	}

	svc, err := startEmbeddings(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	client := ollama.NewClient(cfg.Ollama.BaseURL)
	model, err := ollama.SelectGenerationModel(ctx, client, cfg.Ollama.DefaultModel)
	if err != nil {
		return err
	}
	logger.Debug("using generation model %s", model)

	engine := rag.NewEngine(
		rag.NewRetriever(database, svc, cfg.Retrieval.TopK),
		rag.NewAssembler(client, model),
	)
	answer, err := engine.Ask(ctx, rag.QueryInput{
		CaseID:    c.ID,
		DateStart: start,
		DateEnd:   end,
		Question:  question,
		History:   history,
	})
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range answer.Sources {
			noteType := s.NoteType
			if noteType == "" {
				noteType = "unknown"
			}
			caseworker := s.CaseworkerName
			if caseworker == "" {
				caseworker = "unknown caseworker"
			}
			fmt.Printf("  [%s, %s, %s] (%.2f) %s\n",
				s.CreatedAt.Format("2006-01-02"), noteType, caseworker, s.Similarity, s.Excerpt)
		}
	}
	return nil
}

func readHistory(path string) ([]rag.ConversationTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	var turns []rag.ConversationTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return turns, nil
}

func runStatus(ctx context.Context, cfg *config.Config) error {
	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	total, embedded, err := database.CountChunks(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Chunks: %d total, %d embedded, %d pending\n", total, embedded, total-embedded)
	return nil
}
