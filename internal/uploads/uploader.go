package uploads

import (
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxLicenseFileBytes caps license document uploads.
const MaxLicenseFileBytes = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
)

// Uploader stores license documents and hands back a servable URL. Blob
// storage is an external collaborator; the local-disk implementation is the
// only one the core ships.
type Uploader interface {
	SaveLicense(file *multipart.FileHeader) (url string, err error)
}

type DiskUploader struct {
	dir     string
	baseURL string
}

func NewDiskUploader(dir, baseURL string) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &DiskUploader{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

func (u *DiskUploader) SaveLicense(file *multipart.FileHeader) (string, error) {
	if file.Size > MaxLicenseFileBytes {
		return "", ErrFileTooLarge
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))

	if _, ok := allowedExtensions[ext]; !ok {
		return "", ErrUnsupportedType
	}

	src, err := file.Open()

	if err != nil {
		return "", err
	}

	defer src.Close()

	// stored name is never derived from the client-supplied filename
	name := uuid.NewString() + ext

	dst, err := os.Create(filepath.Join(u.dir, name))

	if err != nil {
		return "", err
	}

	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}

	return u.baseURL + "/" + name, nil
}
