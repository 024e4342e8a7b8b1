package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/internal/awsapi"
	"github.com/fileferry/ferry/internal/validation"
)

// S3 reads objects from an S3-compatible store.
type S3 struct {
	api awsapi.S3API
}

var _ Source = (*S3)(nil)

// NewS3 wraps an existing S3 client.
func NewS3(api awsapi.S3API) (*S3, error) {
	if api == nil {
		return nil, ferryerrors.NewError("source.new", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("s3 client is required")
	}
	return &S3{api: api}, nil
}

// NewS3WithCredentials builds an S3 source whose client signs with the given
// captured credentials instead of the ambient chain. This is how a grant's
// scoped credentials become the transfer's source identity.
func NewS3WithCredentials(cfg aws.Config, creds ferrytypes.Credentials) *S3 {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Credentials = credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
	})
	return &S3{api: client}
}

// Stat returns the object's size, ETag, content type, and modification time.
func (s *S3) Stat(ctx context.Context, ref ferrytypes.ObjectRef) (*ObjectInfo, error) {
	const op = "source.stat"

	if err := validateRef(ref); err != nil {
		return nil, err
	}

	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, mapReadError(op, ref, err)
	}

	return &ObjectInfo{
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// ReadRange streams [start, end) of the object. The caller owns the returned
// reader and must close it.
func (s *S3) ReadRange(ctx context.Context, ref ferrytypes.ObjectRef, start, end int64) (io.ReadCloser, error) {
	const op = "source.read_range"

	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if start < 0 || end <= start {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithSource(ref.String()).
			WithMessage(fmt.Sprintf("invalid byte range [%d, %d)", start, end))
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
		// HTTP ranges are inclusive on both ends.
		Range: aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
	})
	if err != nil {
		return nil, mapReadError(op, ref, err)
	}
	return out.Body, nil
}

func validateRef(ref ferrytypes.ObjectRef) error {
	if err := validation.ValidateBucketName(ref.Bucket); err != nil {
		return err
	}
	return validation.ValidateObjectKey(ref.Key)
}

// mapReadError folds SDK failures into the source error taxonomy: missing
// objects and denied access are permanent; everything else reads as a
// transient transport fault and goes through the retry path.
func mapReadError(op string, ref ferrytypes.ObjectRef, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return ferryerrors.NewError(op, ferryerrors.KindSourceNotFound, ferryerrors.ErrSourceNotFound).
				WithSource(ref.String())
		case "AccessDenied", "Forbidden":
			return ferryerrors.NewError(op, ferryerrors.KindSourceAccessDenied, ferryerrors.ErrSourceAccessDenied).
				WithSource(ref.String())
		}
	}

	// HeadObject failures are not always modeled; fall back on the message.
	msg := err.Error()
	if strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey") {
		return ferryerrors.NewError(op, ferryerrors.KindSourceNotFound, ferryerrors.ErrSourceNotFound).
			WithSource(ref.String())
	}
	if strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "Forbidden") {
		return ferryerrors.NewError(op, ferryerrors.KindSourceAccessDenied, ferryerrors.ErrSourceAccessDenied).
			WithSource(ref.String())
	}

	return ferryerrors.NewError(op, ferryerrors.KindTransientTransport, err).
		WithSource(ref.String())
}
