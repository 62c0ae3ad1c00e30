package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"spendly/internal/access"
	"spendly/internal/amqp"
	"spendly/internal/blob/drive"
	bloblocal "spendly/internal/blob/local"
	"spendly/internal/docstore"
	docmemory "spendly/internal/docstore/memory"
	"spendly/internal/docstore/sqlite"
	"spendly/internal/log"
	"spendly/internal/sheets"
	gsheet "spendly/internal/sheets/google"
	sheetmemory "spendly/internal/sheets/memory"
)

// Factory builds the stores named by a Config.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create opens the document store, the blob store and, when a broker is
// configured, the change publisher wired into the document store.
func (f *Factory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	res := &Result{}

	var pub docstore.ChangePublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue,
			[]string{access.TransactionsCollection}, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without mirror events", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			res.Publisher = client
			res.addCleanup(client.Close)
			pub = client
		}
	}

	docs, err := f.CreateDocstore(config, pub)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	res.Docs = docs
	res.addCleanup(docs.Close)

	if err := f.createBlobs(ctx, config, res); err != nil {
		_ = res.Close()
		return nil, err
	}
	return res, nil
}

// CreateDocstore opens the configured document store. pub may be nil.
func (f *Factory) CreateDocstore(config Config, pub docstore.ChangePublisher) (docstore.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		store, err := sqlite.Open(config.SQLiteDBPath, sqlite.Options{
			RequireIndexes: config.RequireIndexes,
			Publisher:      pub,
			Logger:         f.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		for _, q := range access.Indexes() {
			store.DeclareIndex(q)
		}
		f.logger.Info("Initialized SQLite backend",
			"db_path", config.SQLiteDBPath,
			"require_indexes", config.RequireIndexes,
			"publisher", pub != nil)
		return store, nil

	case MemoryBackend:
		opts := []docmemory.Option{docmemory.WithLogger(f.logger)}
		if config.RequireIndexes {
			opts = append(opts, docmemory.WithRequiredIndexes())
		}
		if pub != nil {
			opts = append(opts, docmemory.WithPublisher(pub))
		}
		store := docmemory.New(opts...)
		for _, q := range access.Indexes() {
			store.DeclareIndex(q)
		}
		f.logger.Info("Initialized memory backend", "publisher", pub != nil)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *Factory) createBlobs(ctx context.Context, config Config, res *Result) error {
	switch config.Blobs {
	case DriveBlobs:
		store, err := drive.New(ctx, config.Google, config.DriveFolderID, f.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Drive blob store: %w", err)
		}
		res.Blobs = store
		f.logger.Info("Initialized Drive blob store")
	default:
		store, err := bloblocal.New(config.BlobDir, config.BlobBaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize local blob store: %w", err)
		}
		res.Blobs = store
		prefix := "/files"
		if u, err := url.Parse(config.BlobBaseURL); err == nil && u.Path != "" {
			prefix = strings.TrimSuffix(u.Path, "/")
		}
		res.FilesPrefix = prefix
		res.Files = http.StripPrefix(prefix, store.Handler())
		f.logger.Info("Initialized local blob store", "dir", config.BlobDir)
	}
	return nil
}

// CreateMirror returns the Google Sheets mirror when a spreadsheet is
// configured and an in-memory mirror otherwise.
func (f *Factory) CreateMirror(ctx context.Context, config Config) (sheets.TransactionMirror, error) {
	if config.SpreadsheetID == "" {
		f.logger.Warn("No spreadsheet configured, mirroring to memory only")
		return sheetmemory.New(), nil
	}
	cli, err := gsheet.New(ctx, config.Google, config.SpreadsheetID, config.SheetName, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	if err := cli.EnsureHeader(ctx); err != nil {
		return nil, fmt.Errorf("prepare mirror sheet: %w", err)
	}
	f.logger.Info("Initialized Google Sheets mirror", "sheet", config.SheetName)
	return cli, nil
}
