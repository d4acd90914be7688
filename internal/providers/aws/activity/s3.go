package awsactivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/common"
)

// logFile is the envelope of one CloudTrail log file delivered to S3.
type logFile struct {
	Records []json.RawMessage `json:"Records"`
}

// S3LogReader reads CloudTrail log files archived in an S3 bucket.
// Supported object suffixes are .json, .json.gz and .json.zst; other objects
// (digests, manifests) are ignored.
type S3LogReader struct {
	client common.S3LogClient
	log    logger.Logger
}

// NewS3LogReader returns a reader using client. log may be nil.
func NewS3LogReader(client common.S3LogClient, log logger.Logger) *S3LogReader {
	if log == nil {
		log = logger.NewNop()
	}
	return &S3LogReader{client: client, log: log}
}

// ReadAll reads every log file under prefix and returns the normalized
// records inside window. Unreadable objects and events become diagnostics;
// only a listing failure is returned as an error.
func (r *S3LogReader) ReadAll(ctx context.Context, bucket, prefix string, window coverage.Window) ([]models.ActivityRecord, []models.Diagnostic, error) {
	var (
		records []models.ActivityRecord
		diags   []models.Diagnostic
		objects int
	)
	paginator := s3svc.NewListObjectsV2Paginator(r.client, &s3svc.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if logFormat(key) == formatUnknown {
				continue
			}
			objects++
			source := fmt.Sprintf("s3://%s/%s", bucket, key)
			recs, objDiags, err := r.readObject(ctx, bucket, key, window)
			if err != nil {
				r.log.Warn("skipping cloudtrail log object", logger.String("object", source), logger.Error(err))
				diags = append(diags, models.Diagnostic{
					Kind:    models.DiagnosticSourceError,
					Source:  source,
					Message: err.Error(),
				})
				continue
			}
			records = append(records, recs...)
			diags = append(diags, objDiags...)
		}
	}

	r.log.Info("read cloudtrail logs from s3",
		logger.String("bucket", bucket),
		logger.String("prefix", prefix),
		logger.Int("objects", objects),
		logger.Int("records", len(records)))
	return records, diags, nil
}

func (r *S3LogReader) readObject(ctx context.Context, bucket, key string, window coverage.Window) ([]models.ActivityRecord, []models.Diagnostic, error) {
	out, err := r.client.GetObject(ctx, &s3svc.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	data, err := decompress(out.Body, logFormat(key))
	if err != nil {
		return nil, nil, err
	}
	return ParseLogFile(data, fmt.Sprintf("s3://%s/%s", bucket, key), window)
}

// ParseLogFile decodes a CloudTrail log file body and normalizes each event.
// Events outside window are dropped; malformed events become diagnostics
// with source "<source>#<index>".
func ParseLogFile(data []byte, source string, window coverage.Window) ([]models.ActivityRecord, []models.Diagnostic, error) {
	var lf logFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, nil, fmt.Errorf("decode log file: %w", err)
	}
	var (
		records []models.ActivityRecord
		diags   []models.Diagnostic
	)
	for i, raw := range lf.Records {
		rec, err := NormalizeEvent(raw, "")
		if err != nil {
			diags = append(diags, models.Diagnostic{
				Kind:    models.DiagnosticMalformedRecord,
				Source:  fmt.Sprintf("%s#%d", source, i),
				Message: err.Error(),
			})
			continue
		}
		if !window.Contains(rec.Timestamp) {
			continue
		}
		records = append(records, rec)
	}
	return records, diags, nil
}

type format int

const (
	formatUnknown format = iota
	formatJSON
	formatGzip
	formatZstd
)

func logFormat(key string) format {
	switch {
	case strings.HasSuffix(key, ".json.gz"):
		return formatGzip
	case strings.HasSuffix(key, ".json.zst"):
		return formatZstd
	case strings.HasSuffix(key, ".json"):
		return formatJSON
	}
	return formatUnknown
}

func decompress(body io.Reader, f format) ([]byte, error) {
	switch f {
	case formatGzip:
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("read gzip stream: %w", err)
		}
		return data, nil
	case formatZstd:
		dec, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, dec); err != nil {
			return nil, fmt.Errorf("read zstd stream: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return io.ReadAll(body)
	}
}
