package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, subfolder, name string, reader io.Reader) (string, error)
}

// DefaultMaxUploadBytes bounds attachments and submissions.
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// submissionTypes lists the MIME types accepted for assignment work.
var submissionTypes = map[string]bool{
	"application/pdf": true,
	"application/zip": true,
	"text/plain":      true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"image/png":  true,
	"image/jpeg": true,
}

// attachmentTypes extends submissionTypes with slide decks and spreadsheets for teacher handouts.
var attachmentTypes = func() map[string]bool {
	types := map[string]bool{
		"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	}
	for k := range submissionTypes {
		types[k] = true
	}
	return types
}()

type inspectedFile struct {
	name    string
	mime    string
	content []byte
}

// inspectUpload reads the multipart file, enforces the size limit and sniffs its
// MIME type from content rather than the client-supplied header.
func inspectUpload(file *multipart.FileHeader, maxSize int64, allowed map[string]bool) (inspectedFile, error) {
	if file == nil {
		return inspectedFile{}, ErrFileRequired
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadBytes
	}
	if file.Size > maxSize {
		return inspectedFile{}, ErrFileTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return inspectedFile{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxSize+1)); err != nil {
		return inspectedFile{}, err
	}
	if int64(buf.Len()) > maxSize {
		return inspectedFile{}, ErrFileTooLarge
	}
	if buf.Len() == 0 {
		return inspectedFile{}, ErrFileRequired
	}

	detected := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	if !allowed[detected] {
		return inspectedFile{}, ErrFileTypeNotAllowed
	}

	return inspectedFile{name: strings.TrimSpace(file.Filename), mime: detected, content: buf.Bytes()}, nil
}

func normalizeMime(value string) string {
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}
