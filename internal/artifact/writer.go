package artifact

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/sales-forecast/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
)

const (
	s3Scheme   = "s3://"
	dateLayout = "2006-01-02"
)

var csvHeader = []string{"Date", "Sales", "predicted_sales", "prediction_date"}

// Format is the encoding of an artifact file
type Format string

// Supported formats
const (
	FormatMsgpack Format = "msgpack"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
)

// FormatFor picks the format from the path extension; msgpack is the default
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	default:
		return FormatMsgpack
	}
}

// Uploader stores an encoded artifact in object storage
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// Writer persists the combined artifact to a local path or an s3:// URI
type Writer struct {
	region   string
	log      *logrus.Logger
	uploader Uploader
}

// NewWriter creates a writer. The S3 client is only built for s3:// paths.
func NewWriter(region string, log *logrus.Logger) *Writer {
	return &Writer{region: region, log: log}
}

// NewWriterWithUploader creates a writer backed by the given object store
func NewWriterWithUploader(uploader Uploader, log *logrus.Logger) *Writer {
	return &Writer{log: log, uploader: uploader}
}

// Write encodes rows by the path extension, stores them and returns the
// blake2b-256 hex digest of the stored bytes.
func (w *Writer) Write(ctx context.Context, path string, rows []models.CombinedRow) (string, error) {
	if path == "" {
		return "", fmt.Errorf("artifact path is empty")
	}

	format := FormatFor(path)
	data, err := Encode(format, rows)
	if err != nil {
		return "", err
	}
	digest := Digest(data)

	if strings.HasPrefix(path, s3Scheme) {
		err = w.upload(ctx, path, data, format)
	} else {
		err = writeFile(path, data)
	}
	if err != nil {
		return "", err
	}

	w.log.WithFields(logrus.Fields{
		"path":   path,
		"format": format,
		"rows":   len(rows),
		"bytes":  len(data),
		"digest": digest,
	}).Info("Artifact written")
	return digest, nil
}

func (w *Writer) upload(ctx context.Context, path string, data []byte, format Format) error {
	bucket, key, err := splitS3Path(path)
	if err != nil {
		return err
	}
	if w.uploader == nil {
		uploader, err := newS3Uploader(ctx, w.region)
		if err != nil {
			return err
		}
		w.uploader = uploader
	}
	if err := w.uploader.Upload(ctx, bucket, key, data, contentType(format)); err != nil {
		return fmt.Errorf("failed to upload artifact to %s: %w", path, err)
	}
	return nil
}

// writeFile replaces path atomically through a temporary file in the same directory
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Digest returns the blake2b-256 hex digest of data
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Encode serializes rows in the given format
func Encode(format Format, rows []models.CombinedRow) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(rows)
	case FormatJSON:
		data, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to encode artifact as json: %w", err)
		}
		return data, nil
	default:
		data, err := msgpack.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to encode artifact as msgpack: %w", err)
		}
		return data, nil
	}
}

// Decode parses rows encoded by Encode
func Decode(format Format, data []byte) ([]models.CombinedRow, error) {
	var rows []models.CombinedRow
	switch format {
	case FormatCSV:
		return decodeCSV(data)
	case FormatJSON:
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode json artifact: %w", err)
		}
	default:
		if err := msgpack.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode msgpack artifact: %w", err)
		}
	}
	for i := range rows {
		rows[i].Date = rows[i].Date.UTC()
		rows[i].PredictionDate = rows[i].PredictionDate.UTC()
	}
	return rows, nil
}

// ReadFile loads a local artifact written by Writer
func ReadFile(path string) ([]models.CombinedRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return Decode(FormatFor(path), data)
}

func encodeCSV(rows []models.CombinedRow) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Date.Format(dateLayout),
			formatOptional(row.Sales),
			formatOptional(row.PredictedSales),
			row.PredictionDate.Format(dateLayout),
		}
		if err := cw.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode artifact as csv: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCSV(data []byte) ([]models.CombinedRow, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to decode csv artifact: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv artifact has no header")
	}

	rows := make([]models.CombinedRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(csvHeader) {
			return nil, fmt.Errorf("csv row %d has %d fields", i+1, len(record))
		}
		date, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid date in csv row %d: %w", i+1, err)
		}
		sales, err := parseOptional(record[1])
		if err != nil {
			return nil, fmt.Errorf("invalid Sales in csv row %d: %w", i+1, err)
		}
		predicted, err := parseOptional(record[2])
		if err != nil {
			return nil, fmt.Errorf("invalid predicted_sales in csv row %d: %w", i+1, err)
		}
		predictionDate, err := time.Parse(dateLayout, record[3])
		if err != nil {
			return nil, fmt.Errorf("invalid prediction_date in csv row %d: %w", i+1, err)
		}
		rows = append(rows, models.CombinedRow{
			Date:           date,
			Sales:          sales,
			PredictedSales: predicted,
			PredictionDate: predictionDate,
		})
	}
	return rows, nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseOptional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func contentType(format Format) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "application/msgpack"
	}
}

func splitS3Path(path string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(path, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 path %q, want s3://bucket/key", path)
	}
	return bucket, key, nil
}

// s3Uploader uploads through the S3 transfer manager
type s3Uploader struct {
	uploader *manager.Uploader
}

func newS3Uploader(ctx context.Context, region string) (*s3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &s3Uploader{uploader: manager.NewUploader(s3.NewFromConfig(cfg))}, nil
}

func (u *s3Uploader) Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}
