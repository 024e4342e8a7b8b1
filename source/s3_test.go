package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
)

type mockS3API struct {
	getObject  func(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	headObject func(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func (m *mockS3API) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.getObject(ctx, in, optFns...)
}

func (m *mockS3API) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return m.headObject(ctx, in, optFns...)
}

func testRef() ferrytypes.ObjectRef {
	return ferrytypes.ObjectRef{Bucket: "exports", Key: "reports/q1.csv"}
}

func TestStatReturnsObjectInfo(t *testing.T) {
	modified := time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC)
	src, err := NewS3(&mockS3API{
		headObject: func(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			assert.Equal(t, "exports", aws.ToString(in.Bucket))
			assert.Equal(t, "reports/q1.csv", aws.ToString(in.Key))
			return &s3.HeadObjectOutput{
				ContentLength: aws.Int64(2048),
				ETag:          aws.String(`"d41d8cd98f00b204e9800998ecf8427e"`),
				ContentType:   aws.String("text/csv"),
				LastModified:  aws.Time(modified),
			}, nil
		},
	})
	require.NoError(t, err)

	info, err := src.Stat(context.Background(), testRef())
	require.NoError(t, err)

	assert.Equal(t, int64(2048), info.Size)
	assert.Equal(t, `"d41d8cd98f00b204e9800998ecf8427e"`, info.ETag)
	assert.Equal(t, "text/csv", info.ContentType)
	assert.True(t, modified.Equal(info.LastModified))
}

func TestStatMapsErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ferryerrors.Kind
	}{
		{
			name:     "modeled missing key",
			err:      &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist"},
			wantKind: ferryerrors.KindSourceNotFound,
		},
		{
			name:     "modeled missing bucket",
			err:      &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist"},
			wantKind: ferryerrors.KindSourceNotFound,
		},
		{
			name:     "modeled access denied",
			err:      &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"},
			wantKind: ferryerrors.KindSourceAccessDenied,
		},
		{
			name:     "unmodeled head 404",
			err:      errors.New("NotFound: The specified key does not exist"),
			wantKind: ferryerrors.KindSourceNotFound,
		},
		{
			name:     "unmodeled head 403",
			err:      errors.New("https response error StatusCode: 403, Forbidden"),
			wantKind: ferryerrors.KindSourceAccessDenied,
		},
		{
			name:     "anything else is transient",
			err:      errors.New("connection reset by peer"),
			wantKind: ferryerrors.KindTransientTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewS3(&mockS3API{
				headObject: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					return nil, tt.err
				},
			})
			require.NoError(t, err)

			_, err = src.Stat(context.Background(), testRef())
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, ferryerrors.KindOf(err))
		})
	}
}

func TestReadRangeSetsInclusiveRangeHeader(t *testing.T) {
	payload := []byte("0123456789")
	src, err := NewS3(&mockS3API{
		getObject: func(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			assert.Equal(t, "bytes=0-1023", aws.ToString(in.Range))
			return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(payload))}, nil
		},
	})
	require.NoError(t, err)

	rc, err := src.ReadRange(context.Background(), testRef(), 0, 1024)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadRangeRejectsBadRanges(t *testing.T) {
	src, err := NewS3(&mockS3API{})
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end int64
	}{
		{name: "negative start", start: -1, end: 10},
		{name: "empty range", start: 5, end: 5},
		{name: "inverted range", start: 10, end: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.ReadRange(context.Background(), testRef(), tt.start, tt.end)
			require.Error(t, err)
			assert.Equal(t, ferryerrors.KindInvalidInput, ferryerrors.KindOf(err))
		})
	}
}

func TestReadRangeValidatesRef(t *testing.T) {
	src, err := NewS3(&mockS3API{})
	require.NoError(t, err)

	_, err = src.ReadRange(context.Background(), ferrytypes.ObjectRef{Bucket: "", Key: "k"}, 0, 1)
	require.Error(t, err)
	assert.Equal(t, ferryerrors.KindInvalidInput, ferryerrors.KindOf(err))

	_, err = src.ReadRange(context.Background(), ferrytypes.ObjectRef{Bucket: "exports", Key: "../escape"}, 0, 1)
	require.Error(t, err)
	assert.Equal(t, ferryerrors.KindInvalidInput, ferryerrors.KindOf(err))
}

type byteSource struct {
	data []byte
}

func (b *byteSource) Stat(context.Context, ferrytypes.ObjectRef) (*ObjectInfo, error) {
	return &ObjectInfo{Size: int64(len(b.data))}, nil
}

func (b *byteSource) ReadRange(_ context.Context, _ ferrytypes.ObjectRef, start, end int64) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data[start:end])), nil
}

func TestSniff(t *testing.T) {
	gzipHeader := []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03}

	ct, err := Sniff(context.Background(), &byteSource{data: gzipHeader}, testRef(), int64(len(gzipHeader)))
	require.NoError(t, err)
	assert.Equal(t, "application/gzip", ct)

	text := []byte("plain text content for sniffing")
	ct, err = Sniff(context.Background(), &byteSource{data: text}, testRef(), int64(len(text)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct, "text/plain"), "got %q", ct)

	ct, err = Sniff(context.Background(), &byteSource{}, testRef(), 0)
	require.NoError(t, err)
	assert.Empty(t, ct)
}
