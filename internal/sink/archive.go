package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"cryptoconnect/logger"
	"cryptoconnect/models"
)

// tradeRecord is the parquet schema of archived trades. Prices and sizes
// are kept as decimal strings so no precision is lost.
type tradeRecord struct {
	Exchange     string `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol       string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradeID      string `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side         string `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price        string `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8"`
	Size         string `parquet:"name=size, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradeTime    int64  `parquet:"name=trade_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ReceivedTime int64  `parquet:"name=received_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ArchiveOptions struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	FlushInterval   time.Duration
	// MaxBuffer flushes a stream early once it holds this many trades.
	MaxBuffer int
}

// Archive buffers trades per exchange and symbol and uploads them to S3 as
// parquet objects, on a timer and whenever a buffer reaches MaxBuffer.
// Events other than trades are ignored.
type Archive struct {
	opts   ArchiveOptions
	client objectPutter
	log    *logger.Entry

	mu      sync.Mutex
	buffer  map[string][]tradeRecord
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewArchive builds the S3 client from the default AWS chain, overridden by
// static credentials when both keys are set.
func NewArchive(ctx context.Context, opts ArchiveOptions, log *logger.Log) (*Archive, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return newArchive(client, opts, log), nil
}

func newArchive(client objectPutter, opts ArchiveOptions, log *logger.Log) *Archive {
	return &Archive{
		opts:   opts,
		client: client,
		log:    log.WithComponent("archive_sink"),
		buffer: make(map[string][]tradeRecord),
		now:    time.Now,
	}
}

// Start launches the periodic flush. It is optional: without it the
// archive flushes only on size and on Close.
func (a *Archive) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("archive already running")
	}
	if a.opts.FlushInterval <= 0 {
		return fmt.Errorf("archive flush interval must be greater than 0")
	}
	a.running = true
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.flushLoop(ctx)
	a.log.WithFields(logger.Fields{
		"bucket":         a.opts.Bucket,
		"flush_interval": a.opts.FlushInterval.String(),
	}).Info("archive started")
	return nil
}

func (a *Archive) flushLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flushAll(ctx)
		}
	}
}

func (a *Archive) Name() string { return "s3_archive" }

func (a *Archive) Write(ctx context.Context, ev models.Event) error {
	trades, ok := ev.(models.TradesEvent)
	if !ok || len(trades.Trades) == 0 {
		return nil
	}
	key := string(trades.Exchange) + "|" + trades.Symbol
	received := trades.ReceivedAt.UnixMilli()

	a.mu.Lock()
	for _, t := range trades.Trades {
		a.buffer[key] = append(a.buffer[key], tradeRecord{
			Exchange:     string(trades.Exchange),
			Symbol:       trades.Symbol,
			TradeID:      t.TradeID,
			Side:         string(t.Side),
			Price:        t.Price.String(),
			Size:         t.Size.String(),
			TradeTime:    t.Time.UnixMilli(),
			ReceivedTime: received,
		})
	}
	size := len(a.buffer[key])
	var full []tradeRecord
	if a.opts.MaxBuffer > 0 && size >= a.opts.MaxBuffer {
		full = a.buffer[key]
		delete(a.buffer, key)
	}
	a.mu.Unlock()

	if full != nil {
		return a.upload(ctx, key, full)
	}
	return nil
}

func (a *Archive) flushAll(ctx context.Context) error {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[string][]tradeRecord)
	a.mu.Unlock()

	var firstErr error
	for key, records := range buffers {
		if len(records) == 0 {
			continue
		}
		if err := a.upload(ctx, key, records); err != nil {
			a.log.WithError(err).WithField("stream", key).Error("archive upload failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *Archive) upload(ctx context.Context, key string, records []tradeRecord) error {
	start := time.Now()
	data, err := encodeParquet(records)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}
	objectKey := a.objectKey(key, a.now().UTC())
	_, err = a.client.PutObject(context.WithoutCancel(ctx), &s3.PutObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	a.log.WithFields(logger.Fields{
		"s3_key":      objectKey,
		"records":     len(records),
		"bytes":       len(data),
		"duration_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
	}).Info("trade batch uploaded")
	return nil
}

// Close stops the flush loop and uploads whatever is still buffered.
func (a *Archive) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	a.running = false
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	return a.flushAll(context.Background())
}

func (a *Archive) objectKey(stream string, ts time.Time) string {
	exchange, symbol, _ := strings.Cut(stream, "|")
	return path.Join(
		a.opts.Prefix,
		"exchange="+exchange,
		"symbol="+symbol,
		fmt.Sprintf("year=%04d/month=%02d/day=%02d/hour=%02d", ts.Year(), int(ts.Month()), ts.Day(), ts.Hour()),
		fmt.Sprintf("trades_%s_%s_%s.parquet", exchange, symbol, uuid.NewString()),
	)
}

// memFile is a write-only in-memory parquet target.
type memFile struct{ buf *bytes.Buffer }

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buf.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFile) Write(b []byte) (int, error)               { return m.buf.Write(b) }
func (m *memFile) Close() error                              { return nil }

func encodeParquet(records []tradeRecord) ([]byte, error) {
	mf := &memFile{buf: &bytes.Buffer{}}
	pw, err := writer.NewParquetWriter(mf, new(tradeRecord), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range records {
		if err := pw.Write(r); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mf.buf.Bytes(), nil
}
