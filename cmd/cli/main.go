package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/api/handlers"
	"github.com/dvloznov/receipt-tracker/internal/archive"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/extractor"
	"github.com/dvloznov/receipt-tracker/internal/identity"
	infraBQ "github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	firestoredb "github.com/dvloznov/receipt-tracker/internal/infra/firestore"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/push"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/dvloznov/receipt-tracker/internal/store/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/tokens"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log = logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Service: "receipt-tracker-cli", Out: os.Stderr})

	switch os.Args[1] {
	case "extract":
		runExtract(cfg, log)
	case "sync":
		runSync(cfg, log)
	case "register":
		runRegister(cfg, log)
	case "inspect":
		runInspect(cfg, log)
	case "archive":
		runArchive(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract   Extract a receipt from a saved page (local file or gs:// URI)")
	fmt.Println("  sync      Extract a receipt and reconcile it into the document store")
	fmt.Println("  register  Create or refresh a user profile")
	fmt.Println("  inspect   Show a user's profile, receipts and token summary")
	fmt.Println("  archive   Upload a saved receipt page to the archive bucket")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) store.Repository {
	if cfg.StoreBackend == config.StoreMemory {
		log.Warn().Msg("Using in-memory document store - nothing will be persisted")
		return inmemory.NewStore()
	}
	repo, err := firestoredb.NewRepository(ctx, cfg.ProjectID, cfg.FirestoreDatabase, clientOptions(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore repository")
	}
	return repo
}

func issuerFor(ctx context.Context, cfg *config.Config, log zerolog.Logger) tokens.Issuer {
	if !cfg.PushEnabled {
		return tokens.Passthrough
	}
	m, err := push.NewMessenger(ctx, cfg.ProjectID, clientOptions(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create FCM client")
	}
	return push.NewIssuer(m)
}

// readMarkup loads a saved receipt page from disk or from the archive bucket.
func readMarkup(ctx context.Context, cfg *config.Config, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "gs://") {
		return os.ReadFile(src)
	}
	bucket, _, err := archive.ParseURI(src)
	if err != nil {
		return nil, err
	}
	a, err := archive.New(ctx, bucket, clientOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.Fetch(ctx, src)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}

func runExtract(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	src := fs.String("file", "", "Path or gs:// URI of the saved receipt page")
	fs.Parse(os.Args[2:])

	if *src == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	markup, err := readMarkup(ctx, cfg, *src)
	if err != nil {
		log.Fatal().Err(err).Str("file", *src).Msg("Failed to read markup")
	}

	ex, err := extractor.Default().ExtractString(string(markup))
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
	printJSON(ex)
}

func runSync(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	src := fs.String("file", "", "Path or gs:// URI of the saved receipt page")
	userID := fs.String("user", "", "User id whose profile receives the receipt")
	token := fs.String("token", "", "Push registration token currently held by the device")
	fs.Parse(os.Args[2:])

	if *src == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli sync -file PATH -user ID [-token TOKEN]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	markup, err := readMarkup(ctx, cfg, *src)
	if err != nil {
		log.Fatal().Err(err).Str("file", *src).Msg("Failed to read markup")
	}
	ex, err := extractor.Default().ExtractString(string(markup))
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	repo := openStore(ctx, cfg, log)
	defer repo.Close()

	profile, err := repo.GetProfile(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Str("user_id", *userID).Msg("Failed to load profile")
	}

	var opts []pipeline.Option
	if cfg.ArchiveBucket != "" {
		a, err := archive.New(ctx, cfg.ArchiveBucket, clientOptions(cfg)...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create receipt archive")
		}
		defer a.Close()
		opts = append(opts, pipeline.WithArchiver(a))
	}
	if cfg.ExportDataset != "" {
		e, err := infraBQ.NewExporter(ctx, cfg.ProjectID, cfg.ExportDataset, clientOptions(cfg)...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery exporter")
		}
		defer e.Close()
		opts = append(opts, pipeline.WithExporter(e))
	}

	r := pipeline.NewReconciler(repo, tokens.NewManager(issuerFor(ctx, cfg, log), tokens.WithThreshold(cfg.TokenStaleAfter)), opts...)
	res, err := r.ReconcileWithMarkup(ctx, ex, markup, profile, domain.Registration{Token: *token})
	if err != nil {
		var stepErr *pipeline.StepError
		if errors.As(err, &stepErr) {
			log.Fatal().Err(err).Stringer("stage", stepErr.Stage).Str("step", stepErr.Step).Msg("Sync failed")
		}
		log.Fatal().Err(err).Msg("Sync failed")
	}
	printJSON(res)
}

func runRegister(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	userID := fs.String("user", "", "User id")
	email := fs.String("email", "", "User email")
	token := fs.String("token", "", "Push registration token")
	mute := fs.Bool("mute", false, "Disable notifications for this user")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Usage: cli register -user ID [-email EMAIL] [-token TOKEN] [-mute]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	id, err := identity.Static(domain.Identity{ID: *userID, Email: *email}).Resolve(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve identity")
	}

	repo := openStore(ctx, cfg, log)
	defer repo.Close()

	existing, err := repo.GetProfile(ctx, id.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Fatal().Err(err).Msg("Failed to load profile")
	}

	notify := !*mute
	profile, tokenErr := handlers.RegisterProfile(ctx, id, existing, domain.Registration{Token: *token}, &notify, issuerFor(ctx, cfg, log), time.Now())
	if tokenErr != nil {
		log.Warn().Err(tokenErr).Msg("Push token rejected, keeping previous token")
	}
	if err := repo.UpsertProfile(ctx, profile); err != nil {
		log.Fatal().Err(err).Msg("Failed to save profile")
	}
	printJSON(profile)
}

func runInspect(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	userID := fs.String("user", "", "User id to inspect")
	limit := fs.Int("limit", 20, "Maximum exported receipts to list")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	ctx := logger.WithContext(context.Background(), log)

	repo := openStore(ctx, cfg, log)
	defer repo.Close()

	profile, err := repo.GetProfile(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Profile not found")
	}

	fmt.Println("\n=== Profile ===")
	fmt.Printf("ID:        %s\n", profile.ID)
	fmt.Printf("Email:     %s\n", profile.Email)
	fmt.Printf("Member ID: %s\n", domain.StringValue(profile.MemberID))
	fmt.Printf("Notify:    %t\n", profile.NotificationsEnabled())
	if profile.HasToken() {
		fmt.Printf("Token at:  %s\n", time.UnixMilli(profile.FCMTokenTimestamp).UTC().Format(time.RFC3339))
	}

	if profile.MemberID == nil {
		fmt.Println("\nNo member bound yet.")
		return
	}
	memberID := *profile.MemberID

	ids, err := repo.ListReceiptIDs(ctx, memberID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list receipts")
	}
	fmt.Printf("\n=== Receipts (%d) ===\n", len(ids))
	for i, id := range ids {
		rec, err := repo.GetReceipt(ctx, memberID, id)
		if err != nil {
			fmt.Printf("%d. %s (unreadable: %v)\n", i+1, id, err)
			continue
		}
		fmt.Printf("%d. %s  %s  %d items\n", i+1, id, domain.StringValue(rec.TradeDatetime), len(rec.Items))
	}

	summary, err := repo.GetTokenSummary(ctx, memberID)
	switch {
	case err == nil:
		fmt.Printf("\nToken summary issued %s\n", time.UnixMilli(summary.IssuedAt).UTC().Format(time.RFC3339))
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("\nNo token summary.")
	default:
		log.Error().Err(err).Msg("Failed to read token summary")
	}

	if cfg.ExportDataset == "" {
		fmt.Println()
		return
	}
	exporter, err := infraBQ.NewExporter(ctx, cfg.ProjectID, cfg.ExportDataset, clientOptions(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery exporter")
	}
	defer exporter.Close()

	rows, err := exporter.ListExportedReceipts(ctx, memberID, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query exported receipts")
	}
	fmt.Printf("\n=== Exported (%d) ===\n", len(rows))
	for _, row := range rows {
		total := "-"
		if row.TotalAmount.Valid {
			total = fmt.Sprintf("%.2f", row.TotalAmount.Float64)
		}
		fmt.Printf("%s  %d items  total %s  exported %s\n", row.ReceiptID, row.ItemCount, total, row.ExportedTS.Format(time.RFC3339))
	}
	fmt.Println()
}

func runArchive(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	bucket := fs.String("bucket", cfg.ArchiveBucket, "GCS bucket name (or set ARCHIVE_BUCKET env)")
	filePath := fs.String("file", "", "Path to the saved receipt page")
	memberID := fs.String("member", "", "Member id the receipt belongs to")
	receiptID := fs.String("receipt", "", "Receipt id")
	fs.Parse(os.Args[2:])

	if *bucket == "" || *filePath == "" || *memberID == "" || *receiptID == "" {
		log.Fatal().Msg("Usage: cli archive -bucket NAME -file PATH -member ID -receipt ID")
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := archive.New(ctx, *bucket, clientOptions(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt archive")
	}
	defer a.Close()

	log.Info().
		Str("bucket", *bucket).
		Str("member_id", *memberID).
		Str("receipt_id", *receiptID).
		Str("file", *filePath).
		Msg("Uploading receipt page")

	uri, err := a.UploadFile(ctx, *memberID, *receiptID, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}
