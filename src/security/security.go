package security

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Upload limits shared by the ingestion pipeline.
const (
	MaxSubjectLength  = 100
	MaxTopicLength    = 100
	MaxUsernameLength = 50
	MaxPromptLength   = 5000
)

// Magic signatures for the accepted binary formats. Text files carry no
// signature and are validated by UTF-8 decoding instead.
var magicBytes = map[string][][]byte{
	".pdf":  {[]byte("%PDF")},
	".docx": {{'P', 'K'}},                                       // zip container
	".doc":  {{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}}, // OLE compound file
	".txt":  nil,
}

var dangerousChars = regexp.MustCompile(`[<>"';\\]`)

// ValidateContent checks that the file's leading bytes match its declared
// extension, so a renamed binary cannot masquerade as a supported format.
func ValidateContent(data []byte, ext string) bool {
	ext = strings.ToLower(ext)
	sigs, ok := magicBytes[ext]
	if !ok {
		return false
	}
	if ext == ".txt" {
		return utf8.Valid(data)
	}
	for _, sig := range sigs {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// AllowedExtension reports whether ext is one of the supported upload types.
func AllowedExtension(ext string) bool {
	_, ok := magicBytes[strings.ToLower(ext)]
	return ok
}

// ValidateSize rejects payloads above the byte ceiling.
func ValidateSize(size int64, max int64) bool {
	return size >= 0 && size <= max
}

// Sanitize strips characters that have meaning in query or markup contexts
// and caps the length. Used on every free-form value before it reaches a
// store or a prompt.
func Sanitize(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	text = dangerousChars.ReplaceAllString(text, "")
	if maxLength > 0 && len(text) > maxLength {
		text = text[:maxLength]
	}
	return strings.TrimSpace(text)
}

// SecureFilename maps an uploaded name to a random one, keeping only the
// extension. Defeats path traversal and collisions in the upload directory.
func SecureFilename(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	return uuid.NewString() + ext
}

// HashBytes fingerprints an upload for duplicate detection.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LogEvent records a security-relevant event (rejected upload, oversize
// payload) on the standard logger.
func LogEvent(event, userID, detail string) {
	log.Printf("SECURITY [%s] user=%s %s", event, userID, detail)
}
