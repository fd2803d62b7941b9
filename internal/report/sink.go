package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nao1215/dqmon/internal/model"
)

// Artifact name prefixes. Each artifact is written as
// <prefix>_<timestamp>_<dataset>.json.
const (
	ArtifactQuality = "quality_metrics"
	ArtifactAnomaly = "anomaly_report"
	ArtifactDrift   = "drift_report"
	ArtifactFinal   = "final_report"

	// ArtifactTimeFormat is the timestamp layout used in artifact file names.
	ArtifactTimeFormat = "20060102_150405"
)

// ErrMinioNotConfigured is returned by NewMinioSink when endpoint or bucket is empty.
var ErrMinioNotConfigured = errors.New("minio sink requires an endpoint and a bucket")

// Sink stores named report documents.
type Sink interface {
	// Put stores data under name and returns where it was written.
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// DirSink writes artifacts into a local directory.
type DirSink struct {
	dir string
}

// NewDirSink creates a DirSink. The directory is created on first Put.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Dir returns the target directory.
func (s *DirSink) Dir() string {
	return s.dir
}

// Put writes data to dir/name with owner-only permissions.
func (s *DirSink) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// MinioConfig configures an S3-compatible artifact bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioSink uploads artifacts to an S3-compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioSink creates a MinioSink. No request is made until EnsureBucket or Put.
func NewMinioSink(cfg MinioConfig) (*MinioSink, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrMinioNotConfigured
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return nil, fmt.Errorf("minio endpoint must not include scheme: %q", cfg.Endpoint)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioSink{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *MinioSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads data as a JSON object named name.
func (s *MinioSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, name), nil
}

// MultiSink puts every artifact into each sink in turn.
type MultiSink []Sink

// Put stores data in every sink and returns the first location.
// The first error stops the remaining sinks.
func (m MultiSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	var first string
	for i, s := range m {
		loc, err := s.Put(ctx, name, data)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = loc
		}
	}
	return first, nil
}

// ArtifactName returns <prefix>_<ts>_<dataset>.json, or <prefix>_<ts>.json
// when dataset is empty. Characters other than letters, digits, '-' and '.'
// in dataset become '_'.
func ArtifactName(prefix, dataset string, ts time.Time) string {
	name := prefix + "_" + ts.Format(ArtifactTimeFormat)
	if slug := artifactSlug(dataset); slug != "" {
		name += "_" + slug
	}
	return name + ".json"
}

func artifactSlug(s string) string {
	return strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s), "_.")
}

// WriteArtifacts serializes the sections of report to sink and records the
// locations in report.Artifacts. Sections that are nil are skipped; the final
// report is always written last so it lists the other artifacts.
func WriteArtifacts(ctx context.Context, sink Sink, report *model.RunReport, ts time.Time) ([]string, error) {
	enc := NewJSONWriter(nil, WithPrettyPrint())

	sections := []struct {
		prefix string
		value  any
		skip   bool
	}{
		{ArtifactQuality, report.Quality, report.Quality == nil},
		{ArtifactAnomaly, report.Anomaly, report.Anomaly == nil},
		{ArtifactDrift, report.Drift, report.Drift == nil},
	}

	var locations []string
	for _, sec := range sections {
		if sec.skip {
			continue
		}
		data, err := enc.Marshal(sec.value)
		if err != nil {
			return locations, fmt.Errorf("failed to encode %s: %w", sec.prefix, err)
		}
		loc, err := sink.Put(ctx, ArtifactName(sec.prefix, report.DatasetName, ts), data)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}

	name := ArtifactName(ArtifactFinal, report.DatasetName, ts)
	report.Artifacts = append(report.Artifacts, locations...)
	report.Artifacts = append(report.Artifacts, name)

	data, err := enc.Marshal(report)
	if err != nil {
		return locations, fmt.Errorf("failed to encode %s: %w", ArtifactFinal, err)
	}
	loc, err := sink.Put(ctx, name, data)
	if err != nil {
		return locations, err
	}
	report.Artifacts[len(report.Artifacts)-1] = loc
	return append(locations, loc), nil
}

// StoredReport is a final report found on disk.
type StoredReport struct {
	Path   string
	Report *model.RunReport
}

// ListFinalReports returns the final reports stored in dir, newest first.
// Files that fail to parse are skipped. A missing directory yields no reports.
func ListFinalReports(dir string) ([]StoredReport, error) {
	matches, err := filepath.Glob(filepath.Join(dir, ArtifactFinal+"_*.json"))
	if err != nil {
		return nil, err
	}

	out := make([]StoredReport, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			continue
		}
		r, err := model.DecodeRunReport(data)
		if err != nil {
			continue
		}
		out = append(out, StoredReport{Path: path, Report: r})
	}

	// The timestamp layout sorts lexically.
	sort.Slice(out, func(i, j int) bool {
		return filepath.Base(out[i].Path) > filepath.Base(out[j].Path)
	})
	return out, nil
}
