package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrInvalidTimeRange is returned when start time is after end time.
	ErrInvalidTimeRange = errors.New("audit: start_time must be before end_time")
)

// ExportRequest defines the slice of the log to package into an evidence
// pack.
type ExportRequest struct {
	OrgID     string    `json:"org_id,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Exporter packages audit entries into a zip evidence pack (entries,
// manifest, checksum) and optionally uploads it to S3.
type Exporter struct {
	log    *Log
	s3     *s3.Client
	bucket string
}

// NewExporter constructs an Exporter over log. s3Client and bucket may be
// left zero-valued; Upload then returns ErrS3NotConfigured.
func NewExporter(log *Log, s3Client *s3.Client, bucket string) *Exporter {
	return &Exporter{log: log, s3: s3Client, bucket: bucket}
}

// ErrS3NotConfigured is returned by Upload when no S3 client/bucket was
// supplied to NewExporter.
var ErrS3NotConfigured = errors.New("audit: s3 client/bucket not configured")

// GeneratePack builds a zip containing entries.json and manifest.json
// (with the chain head and Merkle root at generation time) and returns
// its bytes plus a SHA-256 checksum of the zip itself.
func (e *Exporter) GeneratePack(req ExportRequest) ([]byte, string, error) {
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, "", ErrInvalidTimeRange
	}

	filter := Filter{OrgID: req.OrgID}
	if !req.StartTime.IsZero() {
		filter.From = &req.StartTime
	}
	if !req.EndTime.IsZero() {
		filter.To = &req.EndTime
	}
	entries := e.log.ListLogs(filter)

	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, "", err
	}

	proof := e.log.GetLatestProof()
	manifest := map[string]any{
		"org_id":       req.OrgID,
		"generated_at": time.Now().UTC(),
		"entry_count":  len(entries),
		"merkle_root":  proof.MerkleRoot,
		"period": map[string]any{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	if f, err := w.Create("entries.json"); err != nil {
		return nil, "", err
	} else if _, err := f.Write(entriesJSON); err != nil {
		return nil, "", err
	}
	if f, err := w.Create("manifest.json"); err != nil {
		return nil, "", err
	} else if _, err := f.Write(manifestJSON); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	hash := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(hash[:]), nil
}

// Upload pushes an evidence pack previously built by GeneratePack to the
// configured S3 bucket under key.
func (e *Exporter) Upload(ctx context.Context, key string, pack []byte) error {
	if e.s3 == nil || e.bucket == "" {
		return ErrS3NotConfigured
	}
	_, err := e.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(pack),
	})
	return err
}
