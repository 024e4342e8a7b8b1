// Package validation provides centralized input validation logic.
// This includes source bucket/key validation, destination endpoint
// validation, and security checks.
//
// All request fields are validated before any credential or network
// activity, so a malformed request never consumes a grant.
package validation

import (
	"path"
	"strings"
	"unicode"

	"github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
)

// MaxRequestIDLength bounds external ticket identifiers.
const MaxRequestIDLength = 128

// ValidateRequest validates every field of a transfer request.
// It returns the first violation found.
func ValidateRequest(req ferrytypes.TransferRequest) error {
	if err := ValidateBucketName(req.Source.Bucket); err != nil {
		return err
	}
	if err := ValidateObjectKey(req.Source.Key); err != nil {
		return err
	}
	if err := ValidateDestination(req.Dest); err != nil {
		return err
	}
	if err := ValidateRequestID(req.RequestID); err != nil {
		return err
	}
	if strings.TrimSpace(req.RequesterID) == "" {
		return errors.NewError("validateRequest", errors.KindInvalidInput, errors.ErrInvalidInput).
			WithMessage("requester id cannot be empty")
	}
	return nil
}

// ValidateBucketName validates that a bucket name is DNS-compliant.
// Returns an invalid-input error if the bucket name is invalid.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return invalidInput("validateBucketName", "bucket name cannot be empty")
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return invalidInput("validateBucketName", "bucket name must be between 3 and 63 characters long")
	}
	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return invalidInput("validateBucketName",
				"bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}
	if bucket[0] == '-' || bucket[0] == '.' || bucket[len(bucket)-1] == '-' || bucket[len(bucket)-1] == '.' {
		return invalidInput("validateBucketName", "bucket name cannot start or end with a hyphen or dot")
	}
	if hasAdjacentSpecialChars(bucket) {
		return invalidInput("validateBucketName", "bucket name cannot contain two adjacent periods or hyphens")
	}
	return nil
}

// ValidateObjectKey validates that an object key is valid.
// This includes preventing path traversal attacks and ensuring valid characters.
func ValidateObjectKey(key string) error {
	if key == "" {
		return invalidInput("validateObjectKey", "object key cannot be empty")
	}
	if hasPathTraversal(key) {
		return invalidInput("validateObjectKey", "object key cannot contain path traversal sequences")
	}
	if len(key) > 1024 {
		return invalidInput("validateObjectKey", "object key cannot exceed 1024 characters")
	}
	if hasControlCharacters(key) {
		return invalidInput("validateObjectKey", "object key cannot contain control characters")
	}
	return nil
}

// ValidateDestination validates the remote endpoint description.
func ValidateDestination(dest ferrytypes.Destination) error {
	if !dest.Protocol.Valid() {
		return invalidInput("validateDestination", "unknown destination protocol")
	}
	if err := ValidateHost(dest.Host); err != nil {
		return err
	}
	if dest.Port < 0 || dest.Port > 65535 {
		return invalidInput("validateDestination", "destination port must be between 0 and 65535")
	}
	if err := ValidateRemotePath(dest.Path); err != nil {
		return err
	}
	if dest.Username == "" && dest.SecretRef == "" {
		return invalidInput("validateDestination", "destination needs inline credentials or a secret reference")
	}
	return nil
}

// ValidateHost validates a destination hostname or address.
func ValidateHost(host string) error {
	if host == "" {
		return invalidInput("validateHost", "destination host cannot be empty")
	}
	if strings.ContainsAny(host, "/\\ ") || strings.Contains(host, "://") {
		return invalidInput("validateHost", "destination host must be a bare hostname or address")
	}
	if len(host) > 253 {
		return invalidInput("validateHost", "destination host cannot exceed 253 characters")
	}
	return nil
}

// ValidateRemotePath validates the destination file path.
func ValidateRemotePath(p string) error {
	if p == "" {
		return invalidInput("validateRemotePath", "destination path cannot be empty")
	}
	if hasControlCharacters(p) {
		return invalidInput("validateRemotePath", "destination path cannot contain control characters")
	}
	if strings.Contains(p, "..") || strings.HasPrefix(path.Clean(p), "..") {
		return invalidInput("validateRemotePath", "destination path cannot contain traversal sequences")
	}
	if strings.HasSuffix(p, "/") {
		return invalidInput("validateRemotePath", "destination path must name a file, not a directory")
	}
	return nil
}

// ValidateRequestID validates the structural shape of an external request
// identifier. Ticket-format policy (accepted prefixes) is enforced by the
// session manager, not here.
func ValidateRequestID(id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidInput("validateRequestID", "request id cannot be empty")
	}
	if len(id) > MaxRequestIDLength {
		return invalidInput("validateRequestID", "request id too long")
	}
	if hasControlCharacters(id) || strings.ContainsAny(id, " \t") {
		return invalidInput("validateRequestID", "request id cannot contain whitespace or control characters")
	}
	return nil
}

func invalidInput(op, message string) error {
	return errors.NewError(op, errors.KindInvalidInput, errors.ErrInvalidInput).WithMessage(message)
}

// isValidBucketChar checks if a character is valid in a bucket name
func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// hasAdjacentSpecialChars checks for adjacent special characters
func hasAdjacentSpecialChars(bucket string) bool {
	for i := 0; i < len(bucket)-1; i++ {
		if (bucket[i] == '.' && bucket[i+1] == '.') || (bucket[i] == '-' && bucket[i+1] == '-') {
			return true
		}
	}
	return false
}

// hasPathTraversal checks for path traversal attempts in object keys
func hasPathTraversal(key string) bool {
	if strings.Contains(key, "..") {
		return true
	}
	cleaned := path.Clean(key)
	if strings.HasPrefix(cleaned, "..") || strings.HasPrefix(cleaned, "/") {
		return true
	}
	return false
}

// hasControlCharacters checks for control characters
func hasControlCharacters(s string) bool {
	for _, char := range s {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
