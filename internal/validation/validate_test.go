package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
)

func validRequest() ferrytypes.TransferRequest {
	return ferrytypes.TransferRequest{
		Source: ferrytypes.ObjectRef{Bucket: "data-lake", Key: "exports/report.csv"},
		Dest: ferrytypes.Destination{
			Protocol: ferrytypes.ProtocolSFTP,
			Host:     "files.example.com",
			Port:     22,
			Path:     "/inbound/report.csv",
			Username: "ferry",
			Password: "secret",
		},
		RequesterID: "user-1",
		RequestID:   "REQ0001",
	}
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, ValidateRequest(validRequest()))

	tests := []struct {
		name   string
		mutate func(*ferrytypes.TransferRequest)
	}{
		{"empty bucket", func(r *ferrytypes.TransferRequest) { r.Source.Bucket = "" }},
		{"empty key", func(r *ferrytypes.TransferRequest) { r.Source.Key = "" }},
		{"empty host", func(r *ferrytypes.TransferRequest) { r.Dest.Host = "" }},
		{"empty requester", func(r *ferrytypes.TransferRequest) { r.RequesterID = "  " }},
		{"empty request id", func(r *ferrytypes.TransferRequest) { r.RequestID = "" }},
		{"unknown protocol", func(r *ferrytypes.TransferRequest) { r.Dest.Protocol = "scp" }},
		{"no credentials", func(r *ferrytypes.TransferRequest) {
			r.Dest.Username = ""
			r.Dest.SecretRef = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := ValidateRequest(req)
			require.Error(t, err)
			assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
		})
	}
}

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{"valid simple", "my-bucket", false},
		{"valid with dots", "my.bucket.backups", false},
		{"valid with numbers", "bucket123", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", "a012345678901234567890123456789012345678901234567890123456789012", true},
		{"uppercase", "MyBucket", true},
		{"leading hyphen", "-bucket", true},
		{"trailing dot", "bucket.", true},
		{"adjacent dots", "my..bucket", true},
		{"underscore", "my_bucket", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid nested", "exports/2024/data.parquet", false},
		{"valid single", "file.bin", false},
		{"empty", "", true},
		{"traversal", "../../etc/passwd", true},
		{"embedded traversal", "exports/../secrets", true},
		{"absolute", "/etc/passwd", true},
		{"control characters", "file\x00name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDestination(t *testing.T) {
	base := validRequest().Dest

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateDestination(base))
	})

	t.Run("secret ref instead of inline auth", func(t *testing.T) {
		d := base
		d.Username = ""
		d.Password = ""
		d.SecretRef = "ferry/destinations/example"
		assert.NoError(t, ValidateDestination(d))
	})

	t.Run("port out of range", func(t *testing.T) {
		d := base
		d.Port = 70000
		assert.Error(t, ValidateDestination(d))
	})

	t.Run("host with scheme", func(t *testing.T) {
		d := base
		d.Host = "sftp://files.example.com"
		assert.Error(t, ValidateDestination(d))
	})

	t.Run("directory path", func(t *testing.T) {
		d := base
		d.Path = "/inbound/"
		assert.Error(t, ValidateDestination(d))
	})

	t.Run("path traversal", func(t *testing.T) {
		d := base
		d.Path = "/inbound/../../etc/passwd"
		assert.Error(t, ValidateDestination(d))
	})
}

func TestValidateRequestID(t *testing.T) {
	assert.NoError(t, ValidateRequestID("REQ12345"))
	assert.NoError(t, ValidateRequestID("INC0042"))
	assert.Error(t, ValidateRequestID(""))
	assert.Error(t, ValidateRequestID("REQ 123"))
	assert.Error(t, ValidateRequestID(string(make([]byte, MaxRequestIDLength+1))))
}
