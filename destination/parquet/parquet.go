// Package parquet writes each batch to its own Parquet file, named by the
// batch's block range, and optionally uploads it to S3.
package parquet

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type Config struct {
	// Path holds the files; a temp dir is used when only S3 is configured
	Path      string `json:"path,omitempty"`
	Bucket    string `json:"s3_bucket,omitempty"`
	Region    string `json:"s3_region,omitempty"`
	Prefix    string `json:"s3_path,omitempty"`
	Endpoint  string `json:"s3_endpoint,omitempty"`
	AccessKey string `json:"s3_access_key,omitempty"`
	SecretKey string `json:"s3_secret_key,omitempty"`
}

func (c *Config) Validate() error {
	if c.Path == "" && c.Bucket == "" {
		return fmt.Errorf("either path or s3_bucket must be set")
	}
	if c.Bucket != "" && c.Region == "" {
		return fmt.Errorf("s3_region must be set with s3_bucket")
	}
	return utils.Validate(c)
}

// Parquet files are written as <path>/<stream>/<first block>.parquet. Only the
// unacknowledged batch can be replayed and it restarts at the same first block,
// so the replay replaces its file even when it ends at another block.
type Parquet struct {
	config   *Config
	metadata []string
	s3Client *s3.S3
}

func (p *Parquet) GetConfigRef() destination.Config {
	p.config = &Config{}
	return p.config
}

func (p *Parquet) Spec() any {
	return Config{}
}

func (p *Parquet) Type() string {
	return string(types.Parquet)
}

// setup s3 client if bucket provided
func (p *Parquet) initS3Writer() error {
	if p.config.Bucket == "" {
		return nil
	}

	s3Config := aws.Config{
		Region: aws.String(p.config.Region),
	}
	if p.config.Endpoint != "" {
		s3Config.Endpoint = aws.String(p.config.Endpoint)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}
	if p.config.AccessKey != "" && p.config.SecretKey != "" {
		s3Config.Credentials = credentials.NewStaticCredentials(p.config.AccessKey, p.config.SecretKey, "")
	}
	sess, err := session.NewSession(&s3Config)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %s", err)
	}
	p.s3Client = s3.New(sess)
	return nil
}

func (p *Parquet) Setup(_ context.Context, schema destination.Schema) error {
	metadata, err := schemaMetadata(schema.Columns)
	if err != nil {
		return err
	}
	p.metadata = metadata

	if err := p.initS3Writer(); err != nil {
		return err
	}
	// for s3 the local path only stages files
	if p.config.Path == "" {
		p.config.Path = filepath.Join(os.TempDir(), "pipes")
	}
	if err := os.MkdirAll(p.config.Path, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create path: %s", err)
	}
	return nil
}

func schemaMetadata(columns []types.Column) ([]string, error) {
	metadata := make([]string, 0, len(columns))
	for _, column := range columns {
		var tag string
		switch column.Type {
		// big integers keep full precision as decimal strings
		case types.StringColumn, types.BigIntColumn:
			tag = "type=BYTE_ARRAY, convertedtype=UTF8"
		case types.UInt64Column:
			tag = "type=INT64, convertedtype=UINT_64"
		case types.UInt32Column:
			tag = "type=INT32, convertedtype=UINT_32"
		case types.Int8Column:
			tag = "type=INT32, convertedtype=INT_8"
		case types.TimestampColumn:
			tag = "type=INT64, convertedtype=TIMESTAMP_MILLIS"
		default:
			return nil, fmt.Errorf("column[%s] of type[%s] not supported in parquet", column.Name, column.Type)
		}
		metadata = append(metadata, fmt.Sprintf("name=%s, %s, repetitiontype=REQUIRED", column.Name, tag))
	}
	return metadata, nil
}

// convert maps a row onto the physical types of schemaMetadata
func convert(values []any) ([]any, error) {
	row := make([]any, len(values))
	for idx, value := range values {
		switch v := value.(type) {
		case string:
			row[idx] = v
		case *big.Int:
			row[idx] = v.String()
		case uint64:
			row[idx] = int64(v)
		case uint32:
			row[idx] = int32(v)
		case int8:
			row[idx] = int32(v)
		case time.Time:
			row[idx] = v.UnixMilli()
		default:
			return nil, fmt.Errorf("unsupported value of type %T", value)
		}
	}
	return row, nil
}

func fileName(rows *destination.Rows) string {
	return fmt.Sprintf("%020d.%s", rows.First, constants.ParquetFileExt)
}

func (p *Parquet) Write(ctx context.Context, rows *destination.Rows) error {
	streamDir := url.PathEscape(rows.StreamID)
	destinationFilePath := filepath.Join(p.config.Path, streamDir, fileName(rows))
	if err := os.MkdirAll(filepath.Dir(destinationFilePath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directories: %s", err)
	}

	tmpPath := filepath.Join(filepath.Dir(destinationFilePath), "."+fileName(rows)+".tmp")
	if err := p.writeFile(tmpPath, rows); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := utils.SyncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, destinationFilePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish file[%s]: %s", destinationFilePath, err)
	}
	if err := utils.SyncDir(filepath.Dir(destinationFilePath)); err != nil {
		return fmt.Errorf("failed to sync directory of file[%s]: %s", destinationFilePath, err)
	}
	logger.Debugf("wrote file [%s] with blocks[%d-%d] and %d records", destinationFilePath, rows.First, rows.Last, rows.Len())

	if p.s3Client == nil {
		return nil
	}
	return p.upload(ctx, destinationFilePath, path.Join(p.config.Prefix, streamDir, fileName(rows)))
}

func (p *Parquet) writeFile(filePath string, rows *destination.Rows) error {
	pqFile, err := local.NewLocalFileWriter(filePath)
	if err != nil {
		return fmt.Errorf("failed to create parquet file writer: %s", err)
	}

	pw, err := writer.NewCSVWriter(p.metadata, pqFile, 4)
	if err != nil {
		pqFile.Close()
		return fmt.Errorf("failed to create parquet writer: %s", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for idx, values := range rows.Values {
		row, err := convert(values)
		if err == nil {
			err = pw.Write(row)
		}
		if err != nil {
			pqFile.Close()
			return fmt.Errorf("parquet write error at row[%d]: %s", idx, err)
		}
	}

	return utils.ErrExecSequential(
		utils.ErrExecFormat("failed to stop parquet writer: %s", pw.WriteStop),
		utils.ErrExecFormat("failed to close parquet file: %s", pqFile.Close),
	)
}

func (p *Parquet) upload(ctx context.Context, filePath, key string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open local file for S3 upload: %s", err)
	}
	defer file.Close()

	_, err = p.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3 (bucket: %s, path: %s): %s", p.config.Bucket, key, err)
	}

	// remove local file after upload
	if err := os.Remove(filePath); err != nil {
		logger.Warnf("failed to delete uploaded file [%s]: %s", filePath, err)
	}
	logger.Debugf("uploaded file to S3: s3://%s/%s", p.config.Bucket, key)
	return nil
}

// Check validates S3 permissions when configured and local writability otherwise
func (p *Parquet) Check(ctx context.Context) error {
	if p.s3Client != nil {
		testKey := path.Join(p.config.Prefix, "pipes_writer_test", utils.ULID()+".txt")
		_, err := p.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.config.Bucket),
			Key:    aws.String(testKey),
			Body:   strings.NewReader("S3 write test"),
		})
		if err != nil {
			return fmt.Errorf("failed to write test file to S3: %s", err)
		}
		_, _ = p.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.config.Bucket),
			Key:    aws.String(testKey),
		})
	}

	tempFile, err := os.CreateTemp(p.config.Path, "temporary-*.txt")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s", err)
	}
	tempFile.Close()
	return os.Remove(tempFile.Name())
}

func (p *Parquet) Close() error {
	return nil
}

func init() {
	destination.RegisteredWriters[types.Parquet] = func() destination.Writer {
		return new(Parquet)
	}
}
